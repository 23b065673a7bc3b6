package domain

// Request methods recognized by agent-execution servers.
const (
	MethodInitialize  = "initialize"
	MethodThreadList  = "thread/list"
	MethodThreadStart = "thread/start"
	MethodThreadRes   = "thread/resume"
	MethodModelList   = "model/list"
	MethodAccountRead = "account/read"
	MethodLoginStart  = "account/login/start"
	MethodLoginCancel = "account/login/cancel"
	MethodLogout      = "account/logout"
	MethodTurnStart   = "turn/start"
	MethodTurnStop    = "turn/interrupt"
	MethodCommandExec = "command/exec"
)

// Notification methods delivered by servers. Delivery order across
// methods is not guaranteed.
const (
	NotifyLoginCompleted    = "account/login/completed"
	NotifyAccountUpdated    = "account/updated"
	NotifyTurnStarted       = "turn/started"
	NotifyAgentMessageDelta = "item/agentMessage/delta"
	NotifyItemCompleted     = "item/completed"
	NotifyTurnCompleted     = "turn/completed"

	// NotifyTurnCompletedLegacy is the older spelling some servers still
	// emit for turn completion.
	NotifyTurnCompletedLegacy = "turn/complete"
)
