package experiment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/offer-goat/offer-goat/internal/stats"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Defaults fill in design parameters a caller leaves at zero.
type Defaults struct {
	BaselineRate      float64
	SignificanceLevel float64
	StatisticalPower  float64
	DailyImpressions  int
}

// DefaultDefaults returns the stock planning parameters.
func DefaultDefaults() Defaults {
	return Defaults{
		BaselineRate:      0.03,
		SignificanceLevel: 0.05,
		StatisticalPower:  0.80,
		DailyImpressions:  stats.DefaultDailyImpressions,
	}
}

// CreateInput describes a new experiment.
type CreateInput struct {
	ShopID                  string  `json:"shop_id" validate:"required,max=255"`
	Name                    string  `json:"name" validate:"required,max=255"`
	Description             string  `json:"description" validate:"max=4096"`
	PrimaryMetric           string  `json:"primary_metric" validate:"oneof=conversion_rate click_rate revenue_per_impression"`
	ControlTrafficPercent   int     `json:"control_traffic_percent" validate:"gt=0,lt=100"`
	VariantATrafficPercent  int     `json:"variant_a_traffic_percent" validate:"gt=0,lt=100"`
	VariantBTrafficPercent  *int    `json:"variant_b_traffic_percent,omitempty" validate:"omitempty,gt=0,lt=100"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect" validate:"gte=0"`
	SignificanceLevel       float64 `json:"significance_level" validate:"gt=0,lt=1"`
	StatisticalPower        float64 `json:"statistical_power" validate:"gt=0,lt=1"`
	BaselineRate            float64 `json:"baseline_rate" validate:"gt=0,lt=1"`
	AutoSelectWinner        bool    `json:"auto_select_winner"`
}

func (in *CreateInput) applyDefaults(d Defaults) {
	in.Name = strings.TrimSpace(in.Name)
	in.ShopID = strings.TrimSpace(in.ShopID)
	if in.PrimaryMetric == "" {
		in.PrimaryMetric = MetricConversionRate
	}
	if in.SignificanceLevel == 0 {
		in.SignificanceLevel = d.SignificanceLevel
	}
	if in.StatisticalPower == 0 {
		in.StatisticalPower = d.StatisticalPower
	}
	if in.BaselineRate == 0 {
		in.BaselineRate = d.BaselineRate
	}
}

// Validate checks field ranges, that the planned effect keeps the variant
// rate below 100%, and that the traffic split covers exactly 100%.
func (in *CreateInput) Validate() error {
	if err := structError(validate.Struct(in)); err != nil {
		return err
	}

	if in.BaselineRate*(1+in.MinimumDetectableEffect) >= 1 {
		reason := fmt.Sprintf("a %.0f%% lift on a %.2f%% baseline reaches a 100%% conversion rate",
			in.MinimumDetectableEffect*100, in.BaselineRate*100)
		return &ValidationError{Field: "minimum_detectable_effect", Reason: reason}
	}

	total := in.ControlTrafficPercent + in.VariantATrafficPercent
	if in.VariantBTrafficPercent != nil {
		total += *in.VariantBTrafficPercent
	}
	if total != 100 {
		return &ValidationError{
			Field:  "traffic",
			Reason: fmt.Sprintf("traffic percentages must sum to 100, got %d", total),
		}
	}

	return nil
}

// New validates in and builds a draft experiment with its sample size plan.
// Nothing is returned on a validation failure.
func New(in CreateInput, d Defaults, now time.Time) (*Experiment, error) {
	in.applyDefaults(d)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	plan := stats.CalculateSampleSize(stats.SampleSizeInput{
		BaselineRate:            in.BaselineRate,
		MinimumDetectableEffect: in.MinimumDetectableEffect,
		SignificanceLevel:       in.SignificanceLevel,
		Power:                   in.StatisticalPower,
		DailyImpressions:        d.DailyImpressions,
	})

	exp := &Experiment{
		ID:          uuid.New().String(),
		ShopID:      in.ShopID,
		Name:        in.Name,
		Description: in.Description,
		Status:      StatusDraft,

		PrimaryMetric: in.PrimaryMetric,
		Split: Split{
			Control:  in.ControlTrafficPercent,
			VariantA: in.VariantATrafficPercent,
		},
		MinimumDetectableEffect: in.MinimumDetectableEffect,
		SignificanceLevel:       in.SignificanceLevel,
		StatisticalPower:        in.StatisticalPower,
		BaselineRate:            in.BaselineRate,
		AutoSelectWinner:        in.AutoSelectWinner,

		SampleSizePerVariant:    plan.RequiredPerVariant,
		EstimatedDaysToComplete: plan.EstimatedDaysToComplete,

		PValueVsControl: 1,
		CreatedAt:       now,
	}
	if in.VariantBTrafficPercent != nil {
		exp.Split.VariantB = *in.VariantBTrafficPercent
		exp.VariantB = &Arm{}
	}

	return exp, nil
}

// structError maps validator output onto a ValidationError naming the
// first offending field.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q check (value %v)", fe.ActualTag(), fe.Value()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}
