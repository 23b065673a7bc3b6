package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deckd/internal/domain"
)

func TestLoadModelsPicksDefault(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodModelList, `{"models":[
		{"id":"small","displayName":"Small"},
		{"id":"big","displayName":"Big","isDefault":true,"defaultReasoningEffort":"medium"}
	]}`)
	connectManual(t, env, "a")

	models, err := env.coordinator.LoadModels("a")
	require.NoError(t, err)
	require.Len(t, models, 2)

	snapshot := env.coordinator.State().Snapshot()
	require.NotNil(t, snapshot.SelectedModel)
	require.Equal(t, "big", snapshot.SelectedModel.ModelID)
	require.Equal(t, "medium", snapshot.SelectedModel.ReasoningEffort)
}

func TestLoadModelsKeepsCurrentSelection(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodModelList, `{"models":[
		{"id":"small"},
		{"id":"big","isDefault":true}
	]}`)
	connectManual(t, env, "a")

	require.NoError(t, env.coordinator.SelectModel(domain.ModelSelection{ModelID: "small", ReasoningEffort: "high"}))
	_, err := env.coordinator.LoadModels("a")
	require.NoError(t, err)

	snapshot := env.coordinator.State().Snapshot()
	require.Equal(t, "small", snapshot.SelectedModel.ModelID)
	require.Equal(t, "high", snapshot.SelectedModel.ReasoningEffort)
}

func TestLoadModelsDropsVanishedSelection(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodModelList, `{"models":[{"id":"only"}]}`)
	connectManual(t, env, "a")

	require.NoError(t, env.coordinator.SelectModel(domain.ModelSelection{ModelID: "retired"}))
	_, err := env.coordinator.LoadModels("a")
	require.NoError(t, err)

	snapshot := env.coordinator.State().Snapshot()
	require.Equal(t, "only", snapshot.SelectedModel.ModelID)
}

func TestPickSelection(t *testing.T) {
	models := []domain.ModelInfo{
		{ID: "a"},
		{ID: "b", IsDefault: true, DefaultReasoningEffort: "low"},
	}

	require.Nil(t, pickSelection(nil, nil))

	picked := pickSelection(nil, models)
	require.Equal(t, "b", picked.ModelID)
	require.Equal(t, "low", picked.ReasoningEffort)

	kept := pickSelection(&domain.ModelSelection{ModelID: "a", ReasoningEffort: "high"}, models)
	require.Equal(t, "a", kept.ModelID)
	require.Equal(t, "high", kept.ReasoningEffort)

	first := pickSelection(nil, []domain.ModelInfo{{ID: "x"}, {ID: "y"}})
	require.Equal(t, "x", first.ModelID)
}
