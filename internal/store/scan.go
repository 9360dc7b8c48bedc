package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/offer-goat/offer-goat/internal/experiment"
)

func scanExperiment(sc scanner) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	var status string
	var arms [3]experiment.Arm
	var winning, selected sql.NullString
	var lift sql.NullFloat64
	var createdAt int64
	var startedAt, endedAt, winnerAt, statsAt sql.NullInt64

	dest := []any{
		&exp.ID, &exp.ShopID, &exp.Name, &exp.Description, &status, &exp.PrimaryMetric,
		&exp.Split.Control, &exp.Split.VariantA, &exp.Split.VariantB,
		&exp.MinimumDetectableEffect, &exp.SignificanceLevel, &exp.StatisticalPower, &exp.BaselineRate, &exp.AutoSelectWinner,
		&exp.SampleSizePerVariant, &exp.EstimatedDaysToComplete,
	}
	for i := range arms {
		a := &arms[i]
		dest = append(dest,
			&a.Counters.Impressions, &a.Counters.Clicks, &a.Counters.Conversions, &a.Counters.Revenue,
			&a.Stats.ConversionRate, &a.Stats.CILower, &a.Stats.CIUpper,
			&a.Stats.ClickRate, &a.Stats.RevenuePerImpression, &a.Stats.PValueVsControl,
		)
	}
	dest = append(dest,
		&exp.PValueVsControl, &exp.IsStatisticallySignificant, &winning, &lift, &selected,
		&createdAt, &startedAt, &endedAt, &winnerAt, &statsAt,
	)

	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}

	exp.Status = experiment.Status(status)
	exp.Control = arms[0]
	exp.VariantA = arms[1]
	if exp.Split.HasVariantB() {
		b := arms[2]
		exp.VariantB = &b
	}

	var err error
	if exp.WinningVariant, err = variantPtr(winning); err != nil {
		return nil, err
	}
	if exp.SelectedVariant, err = variantPtr(selected); err != nil {
		return nil, err
	}
	if lift.Valid {
		l := lift.Float64
		exp.WinningLift = &l
	}

	exp.CreatedAt = fromMillis(createdAt)
	exp.StartedAt = timePtr(startedAt)
	exp.EndedAt = timePtr(endedAt)
	exp.WinnerSelectedAt = timePtr(winnerAt)
	exp.StatsUpdatedAt = timePtr(statsAt)

	return &exp, nil
}

func scanEvent(sc scanner) (*experiment.ConversionEvent, error) {
	var ev experiment.ConversionEvent
	var experimentID, variant, orderID sql.NullString
	var impressionAt int64
	var clickedAt, convertedAt, quantity sql.NullInt64
	var revenue sql.NullFloat64

	err := sc.Scan(
		&ev.ID, &ev.ShopID, &ev.OfferID, &experimentID, &ev.SessionID, &variant,
		&impressionAt, &clickedAt, &convertedAt, &orderID, &revenue, &quantity,
	)
	if err != nil {
		return nil, err
	}

	ev.ExperimentID = experimentID.String
	if ev.AssignedVariant, err = variantPtr(variant); err != nil {
		return nil, err
	}
	ev.ImpressionAt = fromMillis(impressionAt)
	ev.ClickedAt = timePtr(clickedAt)
	ev.ConvertedAt = timePtr(convertedAt)
	ev.ConversionOrderID = orderID.String
	ev.ConversionRevenue = revenue.Float64
	ev.ConversionQuantity = int(quantity.Int64)

	return &ev, nil
}

// Timestamps are stored as Unix milliseconds in UTC.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func variantPtr(v sql.NullString) (*experiment.Variant, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	parsed, err := experiment.ParseVariant(v.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt variant column: %w", err)
	}
	return &parsed, nil
}

func nullVariant(v *experiment.Variant) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
