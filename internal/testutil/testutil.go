package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
)

// Epoch is a fixed instant used as "now" throughout tests.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// CreateInput returns a valid two-arm 50/50 input for shop "shop-1".
func CreateInput() experiment.CreateInput {
	return experiment.CreateInput{
		ShopID:                  "shop-1",
		Name:                    "Free shipping banner",
		PrimaryMetric:           experiment.MetricConversionRate,
		ControlTrafficPercent:   50,
		VariantATrafficPercent:  50,
		MinimumDetectableEffect: 0.1,
	}
}

// SeedExperiment persists an experiment built from in and moves it to status.
func SeedExperiment(t *testing.T, s store.Store, in experiment.CreateInput, status experiment.Status) *experiment.Experiment {
	t.Helper()
	ctx := context.Background()

	exp, err := experiment.New(in, experiment.DefaultDefaults(), Epoch)
	if err != nil {
		t.Fatalf("failed to build experiment: %v", err)
	}
	if err := s.CreateExperiment(ctx, exp); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	var path []experiment.Transition
	switch status {
	case experiment.StatusDraft:
	case experiment.StatusRunning:
		path = []experiment.Transition{{From: experiment.StatusDraft, To: experiment.StatusRunning}}
	case experiment.StatusPaused:
		path = []experiment.Transition{
			{From: experiment.StatusDraft, To: experiment.StatusRunning},
			{From: experiment.StatusRunning, To: experiment.StatusPaused},
		}
	case experiment.StatusCompleted:
		path = []experiment.Transition{
			{From: experiment.StatusDraft, To: experiment.StatusRunning},
			{From: experiment.StatusRunning, To: experiment.StatusCompleted},
		}
	default:
		t.Fatalf("cannot seed experiment in status %s", status)
	}

	for _, tr := range path {
		tr.ExperimentID = exp.ID
		tr.At = Epoch
		if err := s.ApplyTransition(ctx, tr); err != nil {
			t.Fatalf("failed to move experiment to %s: %v", tr.To, err)
		}
	}

	got, err := s.GetExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("failed to reload experiment: %v", err)
	}
	return got
}

// Clock is a manually advanced clock starting at Epoch.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetupTestEngine returns an engine over a fresh store, driven by clock.
func SetupTestEngine(t *testing.T, clock *Clock, opts ...engine.Option) (*engine.Engine, *store.SQLiteStore) {
	t.Helper()

	s := SetupTestStore(t)
	opts = append([]engine.Option{engine.WithClock(clock.Now)}, opts...)
	return engine.New(s, opts...), s
}
