package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestRenderItemCommandExecution(t *testing.T) {
	at := time.Now()
	msg, ok := RenderItem(ThreadItem{
		Type:     ItemCommandExecution,
		Command:  "ls -la",
		Output:   "total 4\n",
		ExitCode: intp(1),
	}, at)
	require.True(t, ok)
	require.Equal(t, RoleSystem, msg.Role)
	require.Equal(t, "$ ls -la\ntotal 4\n(exit 1)", msg.Text)
}

func TestRenderItemCommandExecutionZeroExitOmitted(t *testing.T) {
	msg, ok := RenderItem(ThreadItem{
		Type:     ItemCommandExecution,
		Command:  "true",
		ExitCode: intp(0),
	}, time.Now())
	require.True(t, ok)
	require.Equal(t, "$ true", msg.Text)
}

func TestRenderItemFileChangeVerbs(t *testing.T) {
	cases := map[string]string{
		"add":    "Created main.go",
		"create": "Created main.go",
		"delete": "Deleted main.go",
		"remove": "Deleted main.go",
		"update": "Edited main.go",
		"":       "Edited main.go",
	}
	for kind, want := range cases {
		msg, ok := RenderItem(ThreadItem{Type: ItemFileChange, Path: "main.go", Kind: kind}, time.Now())
		require.True(t, ok, kind)
		require.Equal(t, want, msg.Text, kind)
	}
}

func TestRenderItemToolAndSearch(t *testing.T) {
	msg, ok := RenderItem(ThreadItem{Type: ItemToolCall, ToolName: "grep", Output: "match\n"}, time.Now())
	require.True(t, ok)
	require.Equal(t, "Tool: grep\nmatch", msg.Text)

	msg, ok = RenderItem(ThreadItem{Type: ItemWebSearch, Query: "go generics"}, time.Now())
	require.True(t, ok)
	require.Equal(t, "Searched: go generics", msg.Text)
}

func TestRenderItemPlan(t *testing.T) {
	msg, ok := RenderItem(ThreadItem{
		Type: ItemPlan,
		Plan: []PlanStep{
			{Step: "read code", Status: "completed"},
			{Step: "write fix", Status: "pending"},
		},
	}, time.Now())
	require.True(t, ok)
	require.Equal(t, "Plan:\n[x] read code\n[ ] write fix", msg.Text)
}

func TestRenderItemReasoning(t *testing.T) {
	msg, ok := RenderItem(ThreadItem{Type: ItemReasoning, Text: "thinking about it"}, time.Now())
	require.True(t, ok)
	require.Equal(t, RoleReasoning, msg.Role)

	_, ok = RenderItem(ThreadItem{Type: ItemReasoning, Text: "  "}, time.Now())
	require.False(t, ok)
}

func TestRenderItemUnknownDropped(t *testing.T) {
	_, ok := RenderItem(ThreadItem{Type: "holodeck"}, time.Now())
	require.False(t, ok)
}

func TestCombineUserParts(t *testing.T) {
	item := ThreadItem{
		Type: ItemUserMessage,
		Content: []ContentPart{
			{Type: "text", Text: "look at this"},
			{Type: "image", ImageURL: "https://example.com/a.png"},
			{Type: "localImage", Path: "/tmp/shot.png"},
			{Type: "skill", Name: "review"},
			{Type: "mention", Name: "deckd"},
		},
	}
	require.Equal(t,
		"look at this\n[image: https://example.com/a.png]\n[image: /tmp/shot.png]\n[skill: review]\n@deckd",
		CombineUserParts(item))
}

func TestCombineUserPartsFallsBackToText(t *testing.T) {
	require.Equal(t, "plain", CombineUserParts(ThreadItem{Text: "plain"}))
}

func TestMessagesFromHistoryTurnGrouped(t *testing.T) {
	at := time.Now()
	result := ThreadResumeResult{
		Turns: []TurnHistory{
			{TurnID: "u1", Items: []ThreadItem{
				{Type: ItemUserMessage, Content: []ContentPart{{Type: "text", Text: "hi"}}},
				{Type: ItemAgentMessage, Text: "hello"},
			}},
			{TurnID: "u2", Items: []ThreadItem{
				{Type: ItemCommandExecution, Command: "pwd", Output: "/src"},
				{Type: "unknownThing"},
			}},
		},
		// The flat array is ignored when turns are present.
		Items: []ThreadItem{{Type: ItemAgentMessage, Text: "stale"}},
	}
	messages := MessagesFromHistory(result, at)
	require.Len(t, messages, 3)
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, "hi", messages[0].Text)
	require.Equal(t, RoleAssistant, messages[1].Role)
	require.Equal(t, "hello", messages[1].Text)
	require.Equal(t, RoleSystem, messages[2].Role)
	require.Equal(t, "$ pwd\n/src", messages[2].Text)
}

func TestMessagesFromHistoryFlatLegacy(t *testing.T) {
	result := ThreadResumeResult{
		Items: []ThreadItem{
			{Type: ItemUserMessage, Text: "question"},
			{Type: ItemAgentMessage, Text: "answer"},
		},
	}
	messages := MessagesFromHistory(result, time.Now())
	require.Len(t, messages, 2)
	require.Equal(t, "question", messages[0].Text)
	require.Equal(t, "answer", messages[1].Text)
}

func TestThreadItemDecodeContentPartsAndStringContent(t *testing.T) {
	var item ThreadItem
	raw := `{"type":"userMessage","content":[{"type":"text","text":"hey"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	require.Len(t, item.Content, 1)
	require.Equal(t, "hey", item.Content[0].Text)

	var item2 ThreadItem
	require.NoError(t, json.Unmarshal([]byte(`{"type":"agentMessage","content":"inline"}`), &item2))
	require.Equal(t, "inline", item2.Text)
	require.Empty(t, item2.Content)
}
