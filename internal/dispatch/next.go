package dispatch

import (
	"github.com/gantrydev/gantry/internal/state"
	"github.com/gantrydev/gantry/pkg/models"
)

// SuggestionKind classifies what Next recommends.
type SuggestionKind string

const (
	// SuggestTask recommends working a specific task.
	SuggestTask SuggestionKind = "task"
	// SuggestPlan recommends breaking a planning epic into tasks.
	SuggestPlan SuggestionKind = "plan"
	// SuggestIdle means there is nothing actionable.
	SuggestIdle SuggestionKind = "idle"
)

// Suggestion is the recommended next action.
type Suggestion struct {
	Kind   SuggestionKind
	EpicID string
	TaskID string
}

// Next recommends what to work on: the first pending task of an in-progress
// epic, then the first pending task of a ready epic, then the oldest epic
// still in planning. Epics are considered in creation order.
func Next(store state.EpicStore, tasks state.TaskStore) (*Suggestion, error) {
	for _, status := range []models.EpicStatus{models.EpicStatusInProgress, models.EpicStatusReady} {
		epics, err := store.ListEpics(status)
		if err != nil {
			return nil, err
		}
		for _, e := range epics {
			members, err := tasks.ListTasksByEpic(e.ID)
			if err != nil {
				return nil, err
			}
			for _, t := range members {
				if t.Status == models.TaskStatusPending {
					return &Suggestion{Kind: SuggestTask, EpicID: e.ID, TaskID: t.ID}, nil
				}
			}
		}
	}

	planning, err := store.ListEpics(models.EpicStatusPlanning)
	if err != nil {
		return nil, err
	}
	if len(planning) > 0 {
		return &Suggestion{Kind: SuggestPlan, EpicID: planning[0].ID}, nil
	}

	return &Suggestion{Kind: SuggestIdle}, nil
}
