package app

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deckd/internal/domain"
)

func connectManual(t *testing.T, env *testEnv, id string) {
	t.Helper()
	_, err := env.coordinator.Connect(domain.ServerConfig{ID: id, Name: id, Host: "10.0.0.1", Port: 8765, Source: domain.SourceManual})
	require.NoError(t, err)
}

func TestStartThreadSandboxFallback(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	var profiles []string
	client.handle(domain.MethodThreadStart, func(params any) (json.RawMessage, error) {
		p, ok := params.(domain.ThreadStartParams)
		require.True(t, ok)
		profiles = append(profiles, p.SandboxProfile)
		if p.SandboxProfile == domain.SandboxRestricted {
			return nil, errors.New("thread/start failed: sandbox unavailable on this host")
		}
		return json.RawMessage(`{"threadId":"t1"}`), nil
	})
	connectManual(t, env, "a")

	key, err := env.coordinator.StartThread("/src", nil)
	require.NoError(t, err)
	require.Equal(t, "t1", key.ThreadID)
	require.Equal(t, []string{domain.SandboxRestricted, domain.SandboxPermissive}, profiles)
}

func TestStartThreadOtherFailureDoesNotRetry(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.handle(domain.MethodThreadStart, func(any) (json.RawMessage, error) {
		return nil, errors.New("quota exceeded")
	})
	connectManual(t, env, "a")

	_, err := env.coordinator.StartThread("/src", nil)
	require.Error(t, err)
	var coded *domain.Error
	require.ErrorAs(t, err, &coded)
	require.Equal(t, domain.CodeOperation, coded.Code)
	require.Equal(t, 1, client.callCount(domain.MethodThreadStart))
}

func TestStartThreadMakesThreadActive(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadStart, `{"threadId":"t1"}`)
	connectManual(t, env, "a")

	key, err := env.coordinator.StartThread("/src", nil)
	require.NoError(t, err)

	snapshot := env.coordinator.State().Snapshot()
	require.NotNil(t, snapshot.ActiveThreadKey)
	require.Equal(t, key, *snapshot.ActiveThreadKey)
	require.Len(t, snapshot.Threads, 1)
	require.Equal(t, domain.ThreadReady, snapshot.Threads[0].Status)
	require.Equal(t, "/src", snapshot.Threads[0].Cwd)
}

func TestRefreshSessionsMergesWithoutRegression(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadStart, `{"threadId":"t1"}`)
	connectManual(t, env, "a")

	_, err := env.coordinator.StartThread("/src", nil)
	require.NoError(t, err)
	before := env.coordinator.State().Snapshot().Threads[0].UpdatedAt

	// The server reports an older timestamp and fresh metadata.
	stale := before.Add(-time.Hour).Format(time.RFC3339)
	client.respond(domain.MethodThreadList, `{"threads":[
		{"threadId":"t1","preview":"fresh preview","cwd":"/elsewhere","updatedAt":"`+stale+`"},
		{"threadId":"t2","preview":"second","updatedAt":"`+stale+`"}
	]}`)
	require.NoError(t, env.coordinator.RefreshSessions("a"))

	snapshot := env.coordinator.State().Snapshot()
	require.Len(t, snapshot.Threads, 2)
	var t1 *domain.ThreadState
	for i := range snapshot.Threads {
		if snapshot.Threads[i].Key.ThreadID == "t1" {
			t1 = &snapshot.Threads[i]
		}
	}
	require.NotNil(t, t1)
	// Metadata replaced, updatedAt never decreases.
	require.Equal(t, "fresh preview", t1.Preview)
	require.Equal(t, "/elsewhere", t1.Cwd)
	require.True(t, t1.UpdatedAt.Equal(before) || t1.UpdatedAt.After(before))
}

func TestRefreshSessionsPreservesLocalMessages(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadStart, `{"threadId":"t1"}`)
	client.respond(domain.MethodTurnStart, `{"turnId":"u1"}`)
	connectManual(t, env, "a")

	key, err := env.coordinator.SendMessage(SendMessageInput{Text: "hello"})
	require.NoError(t, err)

	client.respond(domain.MethodThreadList, `{"threads":[{"threadId":"t1","preview":"remote"}]}`)
	require.NoError(t, env.coordinator.RefreshSessions("a"))

	snapshot := env.coordinator.State().Snapshot()
	thread := findThread(&snapshot, key)
	require.NotNil(t, thread)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, "hello", thread.Messages[0].Text)
	require.Equal(t, "u1", thread.ActiveTurnID)
}

func TestResumeThreadReconstructsHistory(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadRes, `{
		"threadId":"t7",
		"turns":[{"turnId":"u1","items":[
			{"type":"userMessage","content":[{"type":"text","text":"fix the bug"}]},
			{"type":"commandExecution","command":"go vet","aggregatedOutput":"ok\n"},
			{"type":"agentMessage","text":"done"}
		]}]
	}`)
	connectManual(t, env, "a")

	key, err := env.coordinator.ResumeThread("a", "t7", "/src")
	require.NoError(t, err)

	snapshot := env.coordinator.State().Snapshot()
	thread := findThread(&snapshot, key)
	require.NotNil(t, thread)
	require.Equal(t, domain.ThreadReady, thread.Status)
	require.Len(t, thread.Messages, 3)
	require.Equal(t, domain.RoleUser, thread.Messages[0].Role)
	require.Equal(t, "fix the bug", thread.Messages[0].Text)
	require.Equal(t, domain.RoleSystem, thread.Messages[1].Role)
	require.Equal(t, domain.RoleAssistant, thread.Messages[2].Role)
	require.Equal(t, key, *snapshot.ActiveThreadKey)
}

func TestResumeThreadFailureKeepsThreadScoped(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.handle(domain.MethodThreadRes, func(any) (json.RawMessage, error) {
		return nil, errors.New("thread archive corrupted")
	})
	connectManual(t, env, "a")

	_, err := env.coordinator.ResumeThread("a", "t8", "/src")
	require.Error(t, err)

	snapshot := env.coordinator.State().Snapshot()
	thread := findThread(&snapshot, domain.ThreadKey{ServerID: "a", ThreadID: "t8"})
	require.NotNil(t, thread)
	require.Equal(t, domain.ThreadError, thread.Status)
	require.Contains(t, thread.LastError, "corrupted")
	// A thread-scoped failure never degrades the global status.
	require.Equal(t, domain.ConnReady, snapshot.ConnectionStatus)
}

func TestSelectThreadLazilyResumesEmptyThread(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadList, `{"threads":[{"threadId":"t1","preview":"old","cwd":"/src"}]}`)
	client.respond(domain.MethodThreadRes, `{"threadId":"t1","items":[{"type":"agentMessage","text":"history"}]}`)
	connectManual(t, env, "a")
	require.NoError(t, env.coordinator.RefreshSessions("a"))

	key := domain.ThreadKey{ServerID: "a", ThreadID: "t1"}
	require.NoError(t, env.coordinator.SelectThread(key, ""))

	snapshot := env.coordinator.State().Snapshot()
	thread := findThread(&snapshot, key)
	require.NotNil(t, thread)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, 1, client.callCount(domain.MethodThreadRes))

	// Second select has cached messages; no further resume.
	require.NoError(t, env.coordinator.SelectThread(key, ""))
	require.Equal(t, 1, client.callCount(domain.MethodThreadRes))
}

func TestSelectThreadUnknown(t *testing.T) {
	env := newTestEnv(t)
	connectManual(t, env, "a")
	err := env.coordinator.SelectThread(domain.ThreadKey{ServerID: "a", ThreadID: "ghost"}, "")
	require.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestInterruptClearsActiveTurn(t *testing.T) {
	env := newTestEnv(t)
	client := env.clientFor("a")
	client.respond(domain.MethodThreadStart, `{"threadId":"t1"}`)
	client.respond(domain.MethodTurnStart, `{"turnId":"u1"}`)
	connectManual(t, env, "a")

	key, err := env.coordinator.SendMessage(SendMessageInput{Text: "go"})
	require.NoError(t, err)

	require.NoError(t, env.coordinator.Interrupt())

	snapshot := env.coordinator.State().Snapshot()
	thread := findThread(&snapshot, key)
	require.NotNil(t, thread)
	require.Equal(t, domain.ThreadReady, thread.Status)
	require.Empty(t, thread.ActiveTurnID)
	require.Equal(t, 1, client.callCount(domain.MethodTurnStop))
}

func TestInterruptWithoutActiveThread(t *testing.T) {
	env := newTestEnv(t)
	connectManual(t, env, "a")
	require.ErrorIs(t, env.coordinator.Interrupt(), domain.ErrNoActiveThread)
}

func TestIsSandboxUnavailable(t *testing.T) {
	require.True(t, isSandboxUnavailable(errors.New("Sandbox Unavailable")))
	require.True(t, isSandboxUnavailable(errors.New("landlock not supported")))
	require.True(t, isSandboxUnavailable(errors.New("seatbelt denied")))
	require.False(t, isSandboxUnavailable(errors.New("permission denied")))
	require.False(t, isSandboxUnavailable(nil))
}
