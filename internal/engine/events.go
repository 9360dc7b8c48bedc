package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
)

// AssignVariant returns the arm sessionID falls into for the experiment's
// configured split. The result depends only on the ids and the split.
func (e *Engine) AssignVariant(ctx context.Context, experimentID, sessionID string) (experiment.Variant, error) {
	if sessionID == "" {
		return 0, &experiment.ValidationError{Field: "session_id", Reason: "is required"}
	}
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return 0, err
	}

	v := experiment.Assign(exp.ID, sessionID, exp.Split)
	assignments.WithLabelValues(v.String()).Inc()
	return v, nil
}

// RecordImpression stores a new funnel event. When the impression names a
// known experiment, the variant defaults to the session's assignment and
// the arm's impression counter is incremented. Unknown experiments only
// get the event row.
func (e *Engine) RecordImpression(ctx context.Context, in experiment.Impression) (*experiment.ConversionEvent, error) {
	if err := in.Validate(); err != nil {
		eventsRecorded.WithLabelValues("impression", "rejected").Inc()
		return nil, err
	}

	ev := &experiment.ConversionEvent{
		ID:              uuid.NewString(),
		ShopID:          in.ShopID,
		OfferID:         in.OfferID,
		ExperimentID:    in.ExperimentID,
		SessionID:       in.SessionID,
		AssignedVariant: in.Variant,
		ImpressionAt:    e.now(),
	}

	counted := false
	if in.ExperimentID != "" {
		exp, err := e.store.GetExperiment(ctx, in.ExperimentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			e.log.Debug("impression for unknown experiment", "experiment_id", in.ExperimentID)
		case err != nil:
			return nil, err
		default:
			v := experiment.Assign(exp.ID, in.SessionID, exp.Split)
			if in.Variant != nil {
				v = *in.Variant
			}
			if err := experiment.CheckRecordable(exp, v); err != nil {
				eventsRecorded.WithLabelValues("impression", "rejected").Inc()
				return nil, err
			}
			ev.AssignedVariant = &v
			counted = true
		}
	}

	if err := e.store.RecordImpression(ctx, ev); err != nil {
		if errors.Is(err, store.ErrStale) {
			eventsRecorded.WithLabelValues("impression", "rejected").Inc()
			return nil, e.staleError(ctx, ev.ExperimentID, experiment.ActionRecord)
		}
		return nil, err
	}

	label := "uncounted"
	if counted {
		label = "counted"
	}
	eventsRecorded.WithLabelValues("impression", label).Inc()
	e.log.Debug("impression recorded",
		"event_id", ev.ID,
		"experiment_id", ev.ExperimentID,
		"session_id", ev.SessionID,
	)
	return ev, nil
}

// RecordClick marks the event clicked. Repeated clicks on the same event
// are accepted and change nothing.
func (e *Engine) RecordClick(ctx context.Context, eventID string) (*experiment.ConversionEvent, error) {
	ev, changed, err := e.store.RecordClick(ctx, eventID, e.now())
	if err != nil {
		return nil, e.recordError(ctx, "click", eventID, err)
	}

	eventsRecorded.WithLabelValues("click", outcome(ev, changed)).Inc()
	e.log.Debug("click recorded", "event_id", eventID, "duplicate", !changed)
	return ev, nil
}

// RecordConversion attaches order facts to the event. The facts are set
// once; later conversions for the same event change nothing.
func (e *Engine) RecordConversion(ctx context.Context, eventID string, conv experiment.Conversion) (*experiment.ConversionEvent, error) {
	if err := conv.Validate(); err != nil {
		eventsRecorded.WithLabelValues("conversion", "rejected").Inc()
		return nil, err
	}

	ev, changed, err := e.store.RecordConversion(ctx, eventID, conv, e.now())
	if err != nil {
		return nil, e.recordError(ctx, "conversion", eventID, err)
	}

	eventsRecorded.WithLabelValues("conversion", outcome(ev, changed)).Inc()
	e.log.Debug("conversion recorded",
		"event_id", eventID,
		"order_id", conv.OrderID,
		"duplicate", !changed,
	)
	return ev, nil
}

func (e *Engine) recordError(ctx context.Context, kind, eventID string, err error) error {
	if !errors.Is(err, store.ErrStale) {
		return err
	}
	eventsRecorded.WithLabelValues(kind, "rejected").Inc()

	ev, getErr := e.store.GetEvent(ctx, eventID)
	if getErr != nil {
		return getErr
	}
	return e.staleError(ctx, ev.ExperimentID, experiment.ActionRecord)
}

func outcome(ev *experiment.ConversionEvent, changed bool) string {
	switch {
	case !changed:
		return "duplicate"
	case ev.Counted():
		return "counted"
	}
	return "uncounted"
}
