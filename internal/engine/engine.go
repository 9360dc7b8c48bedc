// Package engine is the experimentation service consumed by the offer-serving,
// scheduler and administration collaborators. Storage goes through
// store.Store; every counter and status change is a single guarded write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/logger"
	"github.com/offer-goat/offer-goat/internal/store"
)

// ErrNotFound is returned for unknown experiment or event ids.
var ErrNotFound = store.ErrNotFound

type Engine struct {
	store       store.Store
	log         *logger.Logger
	now         func() time.Time
	defaults    experiment.Defaults
	concurrency int
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithDefaults(d experiment.Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithConcurrency bounds how many experiments one auto-winner pass
// evaluates at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		log:         logger.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		defaults:    experiment.DefaultDefaults(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	e.log = e.log.Named("engine")
	return e
}

// CreateExperiment validates in and persists a new draft experiment with its
// planned sample size.
func (e *Engine) CreateExperiment(ctx context.Context, in experiment.CreateInput) (*experiment.Experiment, error) {
	exp, err := experiment.New(in, e.defaults, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	e.log.Info("experiment created",
		"experiment_id", exp.ID,
		"shop_id", exp.ShopID,
		"split", fmt.Sprintf("%d/%d/%d", exp.Split.Control, exp.Split.VariantA, exp.Split.VariantB),
		"sample_size_per_variant", exp.SampleSizePerVariant,
	)
	return exp, nil
}

func (e *Engine) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	return e.store.GetExperiment(ctx, id)
}

func (e *Engine) ListExperiments(ctx context.Context, filter store.ListFilter) ([]*experiment.Experiment, error) {
	return e.store.ListExperiments(ctx, filter)
}

func (e *Engine) StartExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	return e.transition(ctx, id, experiment.ActionStart, nil)
}

func (e *Engine) PauseExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	return e.transition(ctx, id, experiment.ActionPause, nil)
}

// EndExperiment completes the experiment, or declares winner when it is
// not nil.
func (e *Engine) EndExperiment(ctx context.Context, id string, winner *experiment.Variant) (*experiment.Experiment, error) {
	return e.transition(ctx, id, experiment.ActionEnd, winner)
}

func (e *Engine) transition(ctx context.Context, id string, action experiment.Action, winner *experiment.Variant) (*experiment.Experiment, error) {
	exp, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	tr, err := experiment.PlanTransition(exp, action, winner, e.now())
	if err != nil {
		transitions.WithLabelValues(string(action), "rejected").Inc()
		return nil, err
	}

	if err := e.store.ApplyTransition(ctx, tr); err != nil {
		if errors.Is(err, store.ErrStale) {
			transitions.WithLabelValues(string(action), "rejected").Inc()
			return nil, e.staleError(ctx, id, action)
		}
		return nil, err
	}
	transitions.WithLabelValues(string(action), "ok").Inc()

	keysAndValues := []any{"experiment_id", id, "from", tr.From, "to", tr.To}
	if winner != nil {
		keysAndValues = append(keysAndValues, "winner", winner.String())
	}
	e.log.Info("experiment "+string(tr.To), keysAndValues...)

	return e.store.GetExperiment(ctx, id)
}

// ResetCounters zeroes the counters and derived statistics of a draft or
// paused experiment.
func (e *Engine) ResetCounters(ctx context.Context, id string) (*experiment.Experiment, error) {
	exp, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := experiment.CheckResettable(exp); err != nil {
		return nil, err
	}

	if err := e.store.ResetCounters(ctx, id); err != nil {
		if errors.Is(err, store.ErrStale) {
			return nil, e.staleError(ctx, id, experiment.ActionReset)
		}
		return nil, err
	}

	e.log.Info("experiment counters reset", "experiment_id", id)
	return e.store.GetExperiment(ctx, id)
}

// RecalculateStatistics recomputes derived statistics from a snapshot of
// the counters and persists them. Counters are never written.
func (e *Engine) RecalculateStatistics(ctx context.Context, id string) (*experiment.Experiment, error) {
	start := time.Now()
	defer func() { recalcDuration.Observe(time.Since(start).Seconds()) }()

	exp, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	results := experiment.Recalculate(exp, e.now())
	if err := e.store.SaveResults(ctx, id, results); err != nil {
		e.log.Error("failed to save statistics", "experiment_id", id, "error", err)
		return nil, err
	}
	exp.ApplyResults(results)

	e.log.Debug("statistics recalculated",
		"experiment_id", id,
		"p_value", results.PValueVsControl,
		"significant", results.IsStatisticallySignificant,
	)
	return exp, nil
}

// ListEvents returns the funnel events recorded against an experiment,
// newest first.
func (e *Engine) ListEvents(ctx context.Context, experimentID string) ([]*experiment.ConversionEvent, error) {
	if _, err := e.store.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}
	return e.store.ListEvents(ctx, experimentID)
}

// staleError reports a lost compare-and-swap against the experiment's
// current status.
func (e *Engine) staleError(ctx context.Context, id string, action experiment.Action) error {
	current, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return err
	}
	return &experiment.TransitionError{ID: id, From: current.Status, Action: action}
}
