package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
)

// Promotion records one experiment moved to winner_selected.
type Promotion struct {
	ExperimentID string             `json:"experiment_id"`
	Winner       experiment.Variant `json:"winner"`
	Lift         *float64           `json:"lift,omitempty"`
	PValue       float64            `json:"p_value"`
}

// AutoWinnerSummary describes one auto-winner pass.
type AutoWinnerSummary struct {
	// Scanned is the number of running auto-select experiments found.
	Scanned int `json:"scanned"`
	// Evaluated counts experiments that reached their sample size and were
	// recalculated.
	Evaluated int         `json:"evaluated"`
	Promoted  []Promotion `json:"promoted"`
	Failed    int         `json:"failed"`
}

// ProcessAutoWinnerSelection scans running experiments with automatic
// winner selection (in one shop, or all shops when shopID is empty). Each
// experiment whose control and variant A arms reached the planned sample
// size is recalculated and, when significant, promoted to winner_selected.
//
// Experiments are independent: a failure is logged and counted, never
// returned. On cancellation the remaining experiments are skipped and
// ctx.Err() is returned along with the partial summary.
func (e *Engine) ProcessAutoWinnerSelection(ctx context.Context, shopID string) (AutoWinnerSummary, error) {
	candidates, err := e.store.ListExperiments(ctx, store.ListFilter{
		ShopID:         shopID,
		Status:         experiment.StatusRunning,
		AutoSelectOnly: true,
	})
	if err != nil {
		return AutoWinnerSummary{}, err
	}

	summary := AutoWinnerSummary{Scanned: len(candidates), Promoted: []Promotion{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, exp := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !exp.SampleReached() {
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			promotion, err := e.evaluateForWinner(ctx, exp.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				autoWinnerFailures.Inc()
				e.log.Warn("auto-winner evaluation failed", "experiment_id", exp.ID, "error", err)
				return nil
			}
			summary.Evaluated++
			if promotion != nil {
				summary.Promoted = append(summary.Promoted, *promotion)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Promoted, func(i, j int) bool {
		return summary.Promoted[i].ExperimentID < summary.Promoted[j].ExperimentID
	})

	autoWinnerPasses.Inc()
	e.log.Info("auto-winner pass finished",
		"shop_id", shopID,
		"scanned", summary.Scanned,
		"evaluated", summary.Evaluated,
		"promoted", len(summary.Promoted),
		"failed", summary.Failed,
	)
	return summary, ctx.Err()
}

// evaluateForWinner recalculates one experiment and promotes it when the
// primary comparison is significant. Losing the status race to another
// writer is not an error.
func (e *Engine) evaluateForWinner(ctx context.Context, id string) (*Promotion, error) {
	exp, err := e.RecalculateStatistics(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != experiment.StatusRunning || !exp.IsStatisticallySignificant || exp.WinningVariant == nil {
		return nil, nil
	}

	winner := *exp.WinningVariant
	err = e.store.ApplyTransition(ctx, experiment.Transition{
		ExperimentID: id,
		From:         experiment.StatusRunning,
		To:           experiment.StatusWinnerSelected,
		Winner:       &winner,
		At:           e.now(),
	})
	if errors.Is(err, store.ErrStale) {
		e.log.Info("auto-winner skipped, status changed concurrently", "experiment_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	autoWinnerPromotions.Inc()
	transitions.WithLabelValues(string(experiment.ActionEnd), "ok").Inc()
	e.log.Info("winner promoted",
		"experiment_id", id,
		"winner", winner.String(),
		"p_value", exp.PValueVsControl,
	)
	return &Promotion{
		ExperimentID: id,
		Winner:       winner,
		Lift:         exp.WinningLift,
		PValue:       exp.PValueVsControl,
	}, nil
}
