package domain

import (
	"sort"
	"strings"
	"time"
)

// ServerSource tags how a server entry came to be known.
type ServerSource string

const (
	SourceLocal    ServerSource = "local"
	SourceBundled  ServerSource = "bundled"
	SourceBonjour  ServerSource = "bonjour"
	SourceOverlay  ServerSource = "overlay"
	SourceShell    ServerSource = "shell"
	SourceLAN      ServerSource = "lan"
	SourceNeighbor ServerSource = "neighbor"
	SourceManual   ServerSource = "manual"
)

// SourcePriority returns the rank of a source, lower is better. Unknown
// sources rank below manual entries.
func SourcePriority(source ServerSource) int {
	switch source {
	case SourceLocal:
		return 0
	case SourceBundled:
		return 1
	case SourceBonjour:
		return 2
	case SourceOverlay:
		return 3
	case SourceShell:
		return 4
	case SourceLAN, SourceNeighbor:
		return 5
	case SourceManual:
		return 6
	default:
		return 7
	}
}

// ServerConfig identifies one agent-execution server. Effectively
// immutable once connected; changing the port yields a new config.
type ServerConfig struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	Source         ServerSource `json:"source"`
	HasAgentServer bool         `json:"hasAgentServer"`
}

// ThreadKey is the compound identity of a thread within the registry.
type ThreadKey struct {
	ServerID string
	ThreadID string
}

type ThreadStatus string

const (
	ThreadReady      ThreadStatus = "ready"
	ThreadConnecting ThreadStatus = "connecting"
	ThreadThinking   ThreadStatus = "thinking"
	ThreadError      ThreadStatus = "error"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleReasoning MessageRole = "reasoning"
)

// ChatMessage is a single rendered entry in a thread. Mutable only while
// Streaming is set; finalized messages never change.
type ChatMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Streaming bool        `json:"streaming"`
	Timestamp time.Time   `json:"timestamp"`
}

// ThreadState is the client-side view of one conversation thread.
type ThreadState struct {
	Key          ThreadKey     `json:"key"`
	Status       ThreadStatus  `json:"status"`
	Messages     []ChatMessage `json:"messages"`
	Preview      string        `json:"preview"`
	Cwd          string        `json:"cwd"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	ActiveTurnID string        `json:"activeTurnId"`
	LastError    string        `json:"lastError"`
}

type AuthStatus string

const (
	AuthNotLoggedIn AuthStatus = "not-logged-in"
	AuthChatGPT     AuthStatus = "chatgpt"
	AuthAPIKey      AuthStatus = "api-key"
	AuthUnknown     AuthStatus = "unknown"
)

// AccountState is replaced wholesale by every auth operation.
type AccountState struct {
	AuthStatus      AuthStatus `json:"authStatus"`
	Email           string     `json:"email"`
	PendingLoginURL string     `json:"pendingLoginUrl"`
	PendingLoginID  string     `json:"pendingLoginId"`
	LastError       string     `json:"lastError"`
}

type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnReady        ConnectionStatus = "ready"
	ConnError        ConnectionStatus = "error"
)

// ModelInfo describes one selectable model as reported by a server.
type ModelInfo struct {
	ID                     string   `json:"id"`
	DisplayName            string   `json:"displayName"`
	IsDefault              bool     `json:"isDefault"`
	ReasoningEfforts       []string `json:"reasoningEfforts,omitempty"`
	DefaultReasoningEffort string   `json:"defaultReasoningEffort,omitempty"`
}

// ModelSelection is the user's model choice for starting turns. An empty
// ReasoningEffort means the server default applies.
type ModelSelection struct {
	ModelID         string `json:"modelId"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

// AppState is the aggregate snapshot published to observers. Snapshots
// are deep copies; holders may read them from any goroutine.
type AppState struct {
	ConnectionStatus ConnectionStatus        `json:"connectionStatus"`
	ConnectionError  string                  `json:"connectionError"`
	ActiveServerID   string                  `json:"activeServerId"`
	ActiveThreadKey  *ThreadKey              `json:"activeThreadKey"`
	Servers          []ServerConfig          `json:"servers"`
	Threads          []ThreadState           `json:"threads"`
	Models           []ModelInfo             `json:"models"`
	SelectedModel    *ModelSelection         `json:"selectedModel"`
	Accounts         map[string]AccountState `json:"accounts"`
}

// SortThreads orders threads most-recently-updated first, with the key
// as a stable tie-breaker.
func SortThreads(threads []ThreadState) {
	sort.SliceStable(threads, func(i, j int) bool {
		if !threads[i].UpdatedAt.Equal(threads[j].UpdatedAt) {
			return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
		}
		if threads[i].Key.ServerID != threads[j].Key.ServerID {
			return threads[i].Key.ServerID < threads[j].Key.ServerID
		}
		return threads[i].Key.ThreadID < threads[j].Key.ThreadID
	})
}

// SortServers orders saved or discovered entries by source priority,
// then case-insensitive name, then id.
func SortServers(servers []ServerConfig) {
	sort.SliceStable(servers, func(i, j int) bool {
		pi, pj := SourcePriority(servers[i].Source), SourcePriority(servers[j].Source)
		if pi != pj {
			return pi < pj
		}
		ni, nj := strings.ToLower(servers[i].Name), strings.ToLower(servers[j].Name)
		if ni != nj {
			return ni < nj
		}
		return servers[i].ID < servers[j].ID
	})
}
