package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
	"github.com/offer-goat/offer-goat/internal/testutil"
)

func intPtr(i int) *int { return &i }

func createRunning(t *testing.T, eng *engine.Engine, in experiment.CreateInput) *experiment.Experiment {
	t.Helper()
	ctx := context.Background()

	exp, err := eng.CreateExperiment(ctx, in)
	require.NoError(t, err)
	exp, err = eng.StartExperiment(ctx, exp.ID)
	require.NoError(t, err)
	return exp
}

func TestCreateExperiment_TrafficSum(t *testing.T) {
	tests := []struct {
		name    string
		control int
		a       int
		b       *int
		wantErr bool
	}{
		{"60/40", 60, 40, nil, false},
		{"50/30/20", 50, 30, intPtr(20), false},
		{"60/30", 60, 30, nil, true},
		{"50/40/20", 50, 40, intPtr(20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, s := testutil.SetupTestEngine(t, testutil.NewClock())
			in := testutil.CreateInput()
			in.ControlTrafficPercent, in.VariantATrafficPercent, in.VariantBTrafficPercent = tt.control, tt.a, tt.b

			exp, err := eng.CreateExperiment(context.Background(), in)
			if tt.wantErr {
				assert.ErrorIs(t, err, experiment.ErrValidation)
				all, listErr := s.ListExperiments(context.Background(), store.ListFilter{})
				require.NoError(t, listErr)
				assert.Empty(t, all, "rejected experiments are never persisted")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, experiment.StatusDraft, exp.Status)
		})
	}
}

func TestEndToEndScenario(t *testing.T) {
	eng, s := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()

	in := testutil.CreateInput()
	in.BaselineRate = 0.03
	in.MinimumDetectableEffect = 0.20
	in.SignificanceLevel = 0.05
	in.StatisticalPower = 0.80
	exp := createRunning(t, eng, in)
	assert.InDelta(t, 13915, exp.SampleSizePerVariant, 2)

	require.NoError(t, s.AddCounts(ctx, exp.ID, experiment.Control, experiment.Counters{Impressions: 1000, Conversions: 40}))
	require.NoError(t, s.AddCounts(ctx, exp.ID, experiment.VariantA, experiment.Counters{Impressions: 1000, Conversions: 58}))

	got, err := eng.RecalculateStatistics(ctx, exp.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.040, got.Control.Stats.ConversionRate, 1e-12)
	assert.InDelta(t, 0.058, got.VariantA.Stats.ConversionRate, 1e-12)
	assert.Greater(t, got.PValueVsControl, 0.0)
	assert.Less(t, got.PValueVsControl, 1.0)
	if got.IsStatisticallySignificant {
		require.NotNil(t, got.WinningVariant)
		assert.Equal(t, experiment.VariantA, *got.WinningVariant)
		assert.Greater(t, *got.WinningLift, 0.0)
	}

	stored, err := eng.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, got.PValueVsControl, stored.PValueVsControl)
	assert.Equal(t, experiment.Counters{Impressions: 1000, Conversions: 40}, stored.Control.Counters)
}

func TestLifecycle(t *testing.T) {
	clock := testutil.NewClock()
	eng, _ := testutil.SetupTestEngine(t, clock)
	ctx := context.Background()

	exp, err := eng.CreateExperiment(ctx, testutil.CreateInput())
	require.NoError(t, err)

	_, err = eng.PauseExperiment(ctx, exp.ID)
	assert.ErrorIs(t, err, experiment.ErrInvalidTransition, "draft cannot be paused")

	started, err := eng.StartExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)
	firstStart := *started.StartedAt

	clock.Advance(time.Hour)
	_, err = eng.PauseExperiment(ctx, exp.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	resumed, err := eng.StartExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.True(t, resumed.StartedAt.Equal(firstStart), "resume keeps the first start time")

	clock.Advance(time.Hour)
	ended, err := eng.EndExperiment(ctx, exp.ID, experiment.VariantA.Ptr())
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusWinnerSelected, ended.Status)
	require.NotNil(t, ended.SelectedVariant)
	assert.Equal(t, experiment.VariantA, *ended.SelectedVariant)
	assert.True(t, ended.EndedAt.Equal(clock.Now()))
	assert.True(t, ended.WinnerSelectedAt.Equal(clock.Now()))

	for name, op := range map[string]func() error{
		"start": func() error { _, err := eng.StartExperiment(ctx, exp.ID); return err },
		"pause": func() error { _, err := eng.PauseExperiment(ctx, exp.ID); return err },
		"end":   func() error { _, err := eng.EndExperiment(ctx, exp.ID, nil); return err },
		"reset": func() error { _, err := eng.ResetCounters(ctx, exp.ID); return err },
	} {
		assert.ErrorIs(t, op(), experiment.ErrInvalidTransition, name)
	}
}

func TestEndExperiment_WithoutWinnerCompletes(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	exp := createRunning(t, eng, testutil.CreateInput())

	ended, err := eng.EndExperiment(context.Background(), exp.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusCompleted, ended.Status)
	assert.Nil(t, ended.SelectedVariant)
	assert.Nil(t, ended.WinnerSelectedAt)
	assert.NotNil(t, ended.EndedAt)
}

func TestEndExperiment_UnknownArm(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	exp := createRunning(t, eng, testutil.CreateInput())

	_, err := eng.EndExperiment(context.Background(), exp.ID, experiment.VariantB.Ptr())
	assert.ErrorIs(t, err, experiment.ErrValidation)
}

func TestOperations_UnknownExperiment(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()

	_, err := eng.StartExperiment(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.RecalculateStatistics(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.AssignVariant(ctx, "missing", "sess-1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.ListEvents(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestResetCounters(t *testing.T) {
	eng, s := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()
	exp := createRunning(t, eng, testutil.CreateInput())
	require.NoError(t, s.AddCounts(ctx, exp.ID, experiment.VariantA, experiment.Counters{Impressions: 10, Conversions: 1}))

	_, err := eng.ResetCounters(ctx, exp.ID)
	assert.ErrorIs(t, err, experiment.ErrInvalidTransition, "running experiments cannot be reset")

	_, err = eng.PauseExperiment(ctx, exp.ID)
	require.NoError(t, err)
	reset, err := eng.ResetCounters(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, experiment.Counters{}, reset.VariantA.Counters)
	assert.Equal(t, experiment.StatusPaused, reset.Status)
}

func TestResetCounters_OldEventsStayOutOfRates(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()
	exp := createRunning(t, eng, testutil.CreateInput())

	var old []string
	for i := 0; i < 5; i++ {
		in := impression(exp.ID, fmt.Sprintf("sess-%d", i))
		in.Variant = experiment.Control.Ptr()
		ev, err := eng.RecordImpression(ctx, in)
		require.NoError(t, err)
		old = append(old, ev.ID)
	}

	_, err := eng.PauseExperiment(ctx, exp.ID)
	require.NoError(t, err)
	_, err = eng.ResetCounters(ctx, exp.ID)
	require.NoError(t, err)
	_, err = eng.StartExperiment(ctx, exp.ID)
	require.NoError(t, err)

	in := impression(exp.ID, "sess-fresh")
	in.Variant = experiment.Control.Ptr()
	_, err = eng.RecordImpression(ctx, in)
	require.NoError(t, err)

	for i, id := range old {
		_, err = eng.RecordClick(ctx, id)
		require.NoError(t, err)
		_, err = eng.RecordConversion(ctx, id, experiment.Conversion{OrderID: fmt.Sprintf("order-%d", i), Revenue: 5, Quantity: 1})
		require.NoError(t, err)
	}

	got, err := eng.RecalculateStatistics(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, experiment.Counters{Impressions: 1}, got.Control.Counters)
	assert.LessOrEqual(t, got.Control.Stats.ConversionRate, got.Control.Stats.CIUpper)
	assert.LessOrEqual(t, got.Control.Stats.ClickRate, 1.0)
}

func TestAssignVariant_Deterministic(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()

	in := testutil.CreateInput()
	in.ControlTrafficPercent, in.VariantATrafficPercent = 70, 30
	exp, err := eng.CreateExperiment(ctx, in)
	require.NoError(t, err)

	first, err := eng.AssignVariant(ctx, exp.ID, "sess-1")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := eng.AssignVariant(ctx, exp.ID, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, experiment.Assign(exp.ID, "sess-1", exp.Split), first)

	_, err = eng.AssignVariant(ctx, exp.ID, "")
	assert.ErrorIs(t, err, experiment.ErrValidation)
}

func TestConcurrentImpressions_NoLostUpdates(t *testing.T) {
	eng, _ := testutil.SetupTestEngine(t, testutil.NewClock())
	ctx := context.Background()
	exp := createRunning(t, eng, testutil.CreateInput())

	const sessions = 200
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.RecordImpression(ctx, experiment.Impression{
				ShopID:       "shop-1",
				OfferID:      "offer-1",
				ExperimentID: exp.ID,
				SessionID:    fmt.Sprintf("sess-%d", i),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := eng.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(sessions), got.Control.Counters.Impressions+got.VariantA.Counters.Impressions)

	events, err := eng.ListEvents(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, events, sessions)
}
