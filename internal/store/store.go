package store

import (
	"context"
	"errors"
	"time"

	"github.com/offer-goat/offer-goat/internal/experiment"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStale is returned when a guarded write finds the experiment in a
	// status other than the one the caller planned against.
	ErrStale = errors.New("experiment status changed")
)

// ListFilter narrows ListExperiments. Zero values match everything.
type ListFilter struct {
	ShopID         string
	Status         experiment.Status
	AutoSelectOnly bool
}

// Store defines the interface for experiment storage operations
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	ListExperiments(ctx context.Context, filter ListFilter) ([]*experiment.Experiment, error)
	CountExperiments(ctx context.Context) (int, error)
	ApplyTransition(ctx context.Context, tr experiment.Transition) error
	AddCounts(ctx context.Context, id string, v experiment.Variant, delta experiment.Counters) error
	SaveResults(ctx context.Context, id string, r experiment.Results) error
	ResetCounters(ctx context.Context, id string) error

	// Event operations
	RecordImpression(ctx context.Context, ev *experiment.ConversionEvent) error
	RecordClick(ctx context.Context, eventID string, at time.Time) (*experiment.ConversionEvent, bool, error)
	RecordConversion(ctx context.Context, eventID string, conv experiment.Conversion, at time.Time) (*experiment.ConversionEvent, bool, error)
	GetEvent(ctx context.Context, id string) (*experiment.ConversionEvent, error)
	ListEvents(ctx context.Context, experimentID string) ([]*experiment.ConversionEvent, error)

	// Lifecycle
	Close() error
}
