package app

import (
	"deckd/internal/domain"
)

// LoadModels lists models from the given server (or the active one) and
// recomputes the selection: keep the current model when still present,
// else the server-flagged default, else the first entry.
func (c *Coordinator) LoadModels(serverID string) ([]domain.ModelInfo, error) {
	return submit(c, func() ([]domain.ModelInfo, error) {
		var entry *clientEntry
		var err error
		if serverID != "" {
			entry, err = c.entryFor(serverID)
		} else {
			entry, err = c.activeEntry()
		}
		if err != nil {
			return nil, err
		}

		var result domain.ModelListResult
		if err := c.call(entry.client, domain.MethodModelList, nil, &result); err != nil {
			return nil, err
		}

		c.state.Commit(func(state *domain.AppState) {
			state.Models = result.Models
			state.SelectedModel = pickSelection(state.SelectedModel, result.Models)
		})
		return result.Models, nil
	})
}

func pickSelection(current *domain.ModelSelection, models []domain.ModelInfo) *domain.ModelSelection {
	if len(models) == 0 {
		return nil
	}
	if current != nil {
		for _, model := range models {
			if model.ID == current.ModelID {
				// Carry forward the explicit effort override.
				keep := *current
				return &keep
			}
		}
	}
	for _, model := range models {
		if model.IsDefault {
			return &domain.ModelSelection{ModelID: model.ID, ReasoningEffort: model.DefaultReasoningEffort}
		}
	}
	return &domain.ModelSelection{ModelID: models[0].ID, ReasoningEffort: models[0].DefaultReasoningEffort}
}

// SelectModel records an explicit model choice.
func (c *Coordinator) SelectModel(selection domain.ModelSelection) error {
	_, err := submit(c, func() (struct{}, error) {
		c.state.Commit(func(state *domain.AppState) {
			state.SelectedModel = &selection
		})
		return struct{}{}, nil
	})
	return err
}
