package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Servers in the wild emit both camelCase and snake_case field names.
// Each payload field carries an explicit alias list, checked in order,
// so the tolerance is visible in one place instead of scattered through
// ad-hoc map lookups.
var (
	aliasThreadID  = []string{"threadId", "thread_id", "id"}
	aliasTurnID    = []string{"turnId", "turn_id"}
	aliasPreview   = []string{"preview", "title", "summary"}
	aliasCwd       = []string{"cwd", "workingDirectory", "working_directory"}
	aliasUpdatedAt = []string{"updatedAt", "updated_at", "timestamp"}
	aliasDelta     = []string{"delta", "text"}
	aliasLoginID   = []string{"loginId", "login_id"}
	aliasAuthURL   = []string{"authUrl", "auth_url", "url"}
	aliasSuccess   = []string{"success", "ok"}
	aliasErrorMsg  = []string{"error", "message"}
	aliasAuthMode  = []string{"authMode", "auth_mode", "authStatus", "auth_status"}
	aliasEmail     = []string{"email", "account"}
	aliasItemType  = []string{"itemType", "item_type", "type"}
	aliasOutput    = []string{"aggregatedOutput", "aggregated_output", "output"}
	aliasExitCode  = []string{"exitCode", "exit_code"}
	aliasToolName  = []string{"toolName", "tool_name", "name"}
	aliasModelID   = []string{"id", "model", "slug"}
	aliasModelName = []string{"displayName", "display_name", "name"}
	aliasIsDefault = []string{"isDefault", "is_default", "default"}
	aliasEfforts   = []string{"reasoningEfforts", "reasoning_efforts", "efforts"}
	aliasEffortDef = []string{"defaultReasoningEffort", "default_reasoning_effort"}
	aliasImageURL  = []string{"imageUrl", "image_url", "url"}
	aliasPath      = []string{"path", "file", "filename"}
)

type payload map[string]json.RawMessage

func decodePayload(raw json.RawMessage) (payload, error) {
	if len(raw) == 0 {
		return payload{}, nil
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload object: %w", err)
	}
	return p, nil
}

func (p payload) raw(aliases []string) (json.RawMessage, bool) {
	for _, name := range aliases {
		if v, ok := p[name]; ok && len(v) > 0 && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func (p payload) str(aliases []string) string {
	v, ok := p.raw(aliases)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return ""
}

func (p payload) boolean(aliases []string) bool {
	v, ok := p.raw(aliases)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	return false
}

func (p payload) intPtr(aliases []string) *int {
	v, ok := p.raw(aliases)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// timestamp accepts RFC3339 strings and unix epoch numbers, in seconds
// or milliseconds.
func (p payload) timestamp(aliases []string) time.Time {
	v, ok := p.raw(aliases)
	if !ok {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(f)
		}
		return time.Time{}
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return epochToTime(f)
	}
	return time.Time{}
}

func epochToTime(f float64) time.Time {
	if f <= 0 || math.IsNaN(f) {
		return time.Time{}
	}
	// Millisecond epochs are 13 digits; second epochs 10.
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// InitializeParams is the handshake request body.
type InitializeParams struct {
	ClientName      string `json:"clientName"`
	ClientVersion   string `json:"clientVersion"`
	ClientID        string `json:"clientId"`
	ProtocolVersion string `json:"protocolVersion"`
}

// InitializeResult is the handshake response.
type InitializeResult struct {
	ServerName    string
	ServerVersion string
}

func (r *InitializeResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.ServerName = p.str([]string{"serverName", "server_name", "name"})
	r.ServerVersion = p.str([]string{"serverVersion", "server_version", "version"})
	return nil
}

// ThreadSummary is one entry of a thread/list response.
type ThreadSummary struct {
	ThreadID  string
	Preview   string
	Cwd       string
	UpdatedAt time.Time
}

func (s *ThreadSummary) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	s.ThreadID = p.str(aliasThreadID)
	s.Preview = p.str(aliasPreview)
	s.Cwd = p.str(aliasCwd)
	s.UpdatedAt = p.timestamp(aliasUpdatedAt)
	return nil
}

type ThreadListResult struct {
	Threads []ThreadSummary
}

func (r *ThreadListResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	v, ok := p.raw([]string{"threads", "sessions", "items"})
	if !ok {
		return nil
	}
	return json.Unmarshal(v, &r.Threads)
}

// ThreadStartParams starts a new thread under a sandbox tier.
type ThreadStartParams struct {
	Cwd             string `json:"cwd"`
	SandboxProfile  string `json:"sandboxProfile"`
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

type ThreadStartResult struct {
	ThreadID string
}

func (r *ThreadStartResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.ThreadID = p.str(aliasThreadID)
	return nil
}

// ThreadResumeParams resumes a server-side thread.
type ThreadResumeParams struct {
	ThreadID       string `json:"threadId"`
	Cwd            string `json:"cwd"`
	SandboxProfile string `json:"sandboxProfile"`
}

// TurnHistory is one turn of a resume response.
type TurnHistory struct {
	TurnID string
	Items  []ThreadItem
}

func (t *TurnHistory) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	t.TurnID = p.str(aliasTurnID)
	if v, ok := p.raw([]string{"items"}); ok {
		if err := json.Unmarshal(v, &t.Items); err != nil {
			return fmt.Errorf("decode turn items: %w", err)
		}
	}
	return nil
}

// ThreadResumeResult carries either a turn-grouped history or a flat
// legacy item array.
type ThreadResumeResult struct {
	ThreadID string
	Turns    []TurnHistory
	Items    []ThreadItem
}

func (r *ThreadResumeResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.ThreadID = p.str(aliasThreadID)
	if v, ok := p.raw([]string{"turns", "history"}); ok {
		if err := json.Unmarshal(v, &r.Turns); err != nil {
			return fmt.Errorf("decode turns: %w", err)
		}
	}
	if v, ok := p.raw([]string{"items"}); ok {
		if err := json.Unmarshal(v, &r.Items); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
	}
	return nil
}

func (m *ModelInfo) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	m.ID = p.str(aliasModelID)
	m.DisplayName = p.str(aliasModelName)
	if m.DisplayName == "" {
		m.DisplayName = m.ID
	}
	m.IsDefault = p.boolean(aliasIsDefault)
	if v, ok := p.raw(aliasEfforts); ok {
		_ = json.Unmarshal(v, &m.ReasoningEfforts)
	}
	m.DefaultReasoningEffort = p.str(aliasEffortDef)
	return nil
}

type ModelListResult struct {
	Models []ModelInfo
}

func (r *ModelListResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	v, ok := p.raw([]string{"models", "items"})
	if !ok {
		return nil
	}
	return json.Unmarshal(v, &r.Models)
}

// AccountReadResult reports the server's view of its account.
type AccountReadResult struct {
	AuthStatus AuthStatus
	Email      string
}

func (r *AccountReadResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.AuthStatus = ParseAuthStatus(p.str(aliasAuthMode))
	r.Email = p.str(aliasEmail)
	return nil
}

// ParseAuthStatus maps the wire auth mode to the client enum. Anything
// unrecognized but non-empty is AuthUnknown.
func ParseAuthStatus(mode string) AuthStatus {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none", "not-logged-in", "notloggedin", "logged_out":
		return AuthNotLoggedIn
	case "chatgpt", "oauth":
		return AuthChatGPT
	case "api-key", "apikey", "api_key":
		return AuthAPIKey
	default:
		return AuthUnknown
	}
}

type LoginStartResult struct {
	LoginID string
	AuthURL string
}

func (r *LoginStartResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.LoginID = p.str(aliasLoginID)
	r.AuthURL = p.str(aliasAuthURL)
	return nil
}

// TurnStartParams starts one turn with structured input parts.
type TurnStartParams struct {
	ThreadID        string      `json:"threadId"`
	Input           []InputPart `json:"input"`
	Cwd             string      `json:"cwd,omitempty"`
	Model           string      `json:"model,omitempty"`
	ReasoningEffort string      `json:"reasoningEffort,omitempty"`
}

// InputPart is one structured piece of turn input.
type InputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

const (
	InputPartText       = "text"
	InputPartLocalImage = "localImage"
)

type TurnStartResult struct {
	TurnID string
}

func (r *TurnStartResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.TurnID = p.str(aliasTurnID)
	return nil
}

type TurnInterruptParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId,omitempty"`
}

// ExecCommandParams runs a command through the server's remote
// execution capability.
type ExecCommandParams struct {
	Command []string `json:"command"`
	Cwd     string   `json:"cwd,omitempty"`
}

type ExecCommandResult struct {
	Output   string
	ExitCode int
}

func (r *ExecCommandResult) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	r.Output = p.str([]string{"output", "stdout"})
	if code := p.intPtr(aliasExitCode); code != nil {
		r.ExitCode = *code
	}
	return nil
}

// Notification payloads.

type LoginCompletedEvent struct {
	LoginID string
	Success bool
	Error   string
}

func (e *LoginCompletedEvent) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	e.LoginID = p.str(aliasLoginID)
	e.Success = p.boolean(aliasSuccess)
	e.Error = p.str(aliasErrorMsg)
	return nil
}

type TurnStartedEvent struct {
	ThreadID string
	TurnID   string
}

func (e *TurnStartedEvent) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	e.ThreadID = p.str(aliasThreadID)
	e.TurnID = p.str(aliasTurnID)
	return nil
}

type AgentMessageDeltaEvent struct {
	ThreadID string
	Delta    string
}

func (e *AgentMessageDeltaEvent) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	e.ThreadID = p.str(aliasThreadID)
	e.Delta = p.str(aliasDelta)
	return nil
}

type ItemCompletedEvent struct {
	ThreadID string
	Item     ThreadItem
}

func (e *ItemCompletedEvent) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	e.ThreadID = p.str(aliasThreadID)
	if v, ok := p.raw([]string{"item"}); ok {
		if err := json.Unmarshal(v, &e.Item); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
	}
	return nil
}

// TurnCompletedEvent may arrive without a thread id; see the
// coordinator's best-effort fallback.
type TurnCompletedEvent struct {
	ThreadID string
	TurnID   string
}

func (e *TurnCompletedEvent) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	e.ThreadID = p.str(aliasThreadID)
	e.TurnID = p.str(aliasTurnID)
	return nil
}
