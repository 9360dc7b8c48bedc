package experiment

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionEnd    Action = "end"
	ActionReset  Action = "reset"
	ActionRecord Action = "record events on"
)

// NextStatus applies the lifecycle table:
//
//	draft, paused   --start--> running
//	running         --pause--> paused
//	running, paused --end-->   completed (no winner) | winner_selected
//
// Terminal statuses reject every action.
func NextStatus(from Status, action Action, winner *Variant) (Status, error) {
	switch action {
	case ActionStart:
		if from == StatusDraft || from == StatusPaused {
			return StatusRunning, nil
		}
	case ActionPause:
		if from == StatusRunning {
			return StatusPaused, nil
		}
	case ActionEnd:
		if from == StatusRunning || from == StatusPaused {
			if winner != nil {
				return StatusWinnerSelected, nil
			}
			return StatusCompleted, nil
		}
	}
	return "", &TransitionError{From: from, Action: action}
}

// Transition is a compare-and-swap of an experiment's status.
type Transition struct {
	ExperimentID string
	From         Status
	To           Status
	Winner       *Variant
	At           time.Time
}

// PlanTransition validates action against e's current status and winner
// against e's arms.
func PlanTransition(e *Experiment, action Action, winner *Variant, now time.Time) (Transition, error) {
	if winner != nil && !e.HasVariant(*winner) {
		return Transition{}, &ValidationError{
			Field:  "winner",
			Reason: fmt.Sprintf("experiment has no %s arm", winner),
		}
	}

	to, err := NextStatus(e.Status, action, winner)
	if err != nil {
		if te, ok := err.(*TransitionError); ok {
			te.ID = e.ID
		}
		return Transition{}, err
	}

	return Transition{
		ExperimentID: e.ID,
		From:         e.Status,
		To:           to,
		Winner:       winner,
		At:           now,
	}, nil
}

// CheckRecordable returns an error unless events may be counted against e.
func CheckRecordable(e *Experiment, v Variant) error {
	if !e.Status.Accumulating() {
		return &TransitionError{ID: e.ID, From: e.Status, Action: ActionRecord}
	}
	if !e.HasVariant(v) {
		return &ValidationError{Field: "variant", Reason: fmt.Sprintf("experiment has no %s arm", v)}
	}
	return nil
}

// CheckResettable allows counter resets only before or between runs.
func CheckResettable(e *Experiment) error {
	if e.Status == StatusDraft || e.Status == StatusPaused {
		return nil
	}
	return &TransitionError{ID: e.ID, From: e.Status, Action: ActionReset}
}
