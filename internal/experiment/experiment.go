package experiment

import "time"

type Status string

const (
	StatusDraft          Status = "draft"
	StatusRunning        Status = "running"
	StatusPaused         Status = "paused"
	StatusCompleted      Status = "completed"
	StatusWinnerSelected Status = "winner_selected"
)

// Terminal reports whether no further transitions or counter updates are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusWinnerSelected
}

// Accumulating reports whether counters may move in this status.
func (s Status) Accumulating() bool {
	return s == StatusRunning || s == StatusPaused
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusWinnerSelected:
		return true
	}
	return false
}

// Metric names accepted as an experiment's primary metric.
const (
	MetricConversionRate       = "conversion_rate"
	MetricClickRate            = "click_rate"
	MetricRevenuePerImpression = "revenue_per_impression"
)

// Split holds traffic percentages. VariantB is 0 when the experiment has
// only two arms.
type Split struct {
	Control  int `json:"control"`
	VariantA int `json:"variant_a"`
	VariantB int `json:"variant_b,omitempty"`
}

func (s Split) HasVariantB() bool {
	return s.VariantB > 0
}

// Percent returns the configured share of v.
func (s Split) Percent(v Variant) int {
	switch v {
	case Control:
		return s.Control
	case VariantA:
		return s.VariantA
	case VariantB:
		return s.VariantB
	}
	return 0
}

// Counters are raw event tallies for one arm. They only move forward,
// except on an explicit reset.
type Counters struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// ArmStats are derived from Counters by Recalculate.
type ArmStats struct {
	ConversionRate       float64 `json:"conversion_rate"`
	CILower              float64 `json:"ci_lower"`
	CIUpper              float64 `json:"ci_upper"`
	ClickRate            float64 `json:"click_rate"`
	RevenuePerImpression float64 `json:"revenue_per_impression"`
	// PValueVsControl is left at 0 for the control arm itself.
	PValueVsControl float64 `json:"p_value_vs_control,omitempty"`
}

type Arm struct {
	Counters Counters `json:"counters"`
	Stats    ArmStats `json:"stats"`
}

type Experiment struct {
	ID          string `json:"id"`
	ShopID      string `json:"shop_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	PrimaryMetric           string  `json:"primary_metric"`
	Split                   Split   `json:"traffic"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"`
	SignificanceLevel       float64 `json:"significance_level"`
	StatisticalPower        float64 `json:"statistical_power"`
	BaselineRate            float64 `json:"baseline_rate"`
	AutoSelectWinner        bool    `json:"auto_select_winner"`

	SampleSizePerVariant    int `json:"calculated_sample_size_per_variant"`
	EstimatedDaysToComplete int `json:"estimated_days_to_complete"`

	Control  Arm  `json:"control"`
	VariantA Arm  `json:"variant_a"`
	VariantB *Arm `json:"variant_b,omitempty"`

	PValueVsControl            float64  `json:"p_value_vs_control"`
	IsStatisticallySignificant bool     `json:"is_statistically_significant"`
	WinningVariant             *Variant `json:"winning_variant,omitempty"`
	WinningLift                *float64 `json:"winning_lift,omitempty"`
	// SelectedVariant is the declared winner, set on End(winner) or by
	// automatic promotion.
	SelectedVariant *Variant `json:"selected_variant,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	WinnerSelectedAt *time.Time `json:"winner_selected_at,omitempty"`
	StatsUpdatedAt   *time.Time `json:"stats_updated_at,omitempty"`
}

// Variants returns the arms this experiment has, in bucketing order.
func (e *Experiment) Variants() []Variant {
	if e.Split.HasVariantB() {
		return AllVariants
	}
	return AllVariants[:2]
}

func (e *Experiment) HasVariant(v Variant) bool {
	switch v {
	case Control, VariantA:
		return true
	case VariantB:
		return e.Split.HasVariantB()
	}
	return false
}

// Arm returns the arm for v, or nil if the experiment has no such arm.
func (e *Experiment) Arm(v Variant) *Arm {
	switch v {
	case Control:
		return &e.Control
	case VariantA:
		return &e.VariantA
	case VariantB:
		return e.VariantB
	}
	return nil
}

// CurrentSample is the smallest impression count of the primary comparison.
func (e *Experiment) CurrentSample() int64 {
	return min(e.Control.Counters.Impressions, e.VariantA.Counters.Impressions)
}

// SampleReached reports whether the primary comparison has enough data for
// a winner decision.
func (e *Experiment) SampleReached() bool {
	return e.SampleSizePerVariant > 0 && e.CurrentSample() >= int64(e.SampleSizePerVariant)
}
