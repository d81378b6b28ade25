// Package protocol defines the file-backed IPC wire format shared by the
// host and every worker: event kinds, task types, and the reserved
// top-level JSON keys every IPC file carries.
package protocol

// Reserved top-level keys present on every IPC JSON object.
const (
	KeyType      = "type"
	KeyRequestID = "request_id"
	KeyTimestamp = "timestamp"
)

// CloseSentinel is the extensionless sentinel file written to a
// workspace's input/ directory to signal the worker to wind down.
// It preempts any input/*.json file that appears after it.
const CloseSentinel = "_close"

// Worker input event kinds (host -> worker, written under input/).
const (
	InputMessage = "message" // requires "text"
	InputClose   = "_close"  // sentinel file, no body
)

// Worker output event kinds (worker -> host, one per file under output/).
const (
	OutputResult     = "result"
	OutputThinking   = "thinking"
	OutputToolUse    = "tool_use"
	OutputText       = "text"
	OutputToolResult = "tool_result"
	OutputSystem     = "system"
)

// OutputEvent is a single line of the worker's output stream: exactly one
// per file in name order. Unknown keys are ignored for forward
// compatibility; only Type is required.
type OutputEvent struct {
	Type            string         `json:"type"`
	Content         string         `json:"content,omitempty"`
	Result          any            `json:"result,omitempty"`
	NewSessionToken string         `json:"new_session_token,omitempty"`
	ToolName        string         `json:"tool_name,omitempty"`
	ToolCallID      string         `json:"tool_call_id,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

// IsQueryDonePulse reports whether this is the result event with an empty
// body and a new session token — the worker finished a turn and returned
// to its input wait loop without exiting.
func (e OutputEvent) IsQueryDonePulse() bool {
	return e.Type == OutputResult && e.Result == nil && e.NewSessionToken != ""
}

// Worker task type prefixes (worker -> host, written under tasks/).
// A task file's "type" is dispatched by matching these prefixes in order.
const (
	PrefixService  = "service:"  // service:<tool> — gated privileged action
	PrefixSecurity = "security:" // security:bash_check — bash gating sub-protocol
	PrefixAskUser  = "ask_user:" // ask_user:ask — blocking user question

	TaskBashCheck = "security:bash_check"
	TaskAskUser   = "ask_user:ask"
)

// Lifecycle and admin task verbs, dispatched outside the prefix table.
const (
	TaskResetContext     = "reset_context"
	TaskFinishedWork     = "finished_work"
	TaskRegisterWorkspace = "register_workspace"
	TaskDeploy           = "deploy"
	TaskScheduleTask     = "schedule_task"
	TaskScheduleHostJob  = "schedule_host_job"
	TaskPauseTask        = "pause_task"
	TaskResumeTask       = "resume_task"
	TaskCancelTask       = "cancel_task"
)

// TaskRequest is the generic shape of a privileged-action request file
// under tasks/. Handlers decode Payload into the concrete type they need.
type TaskRequest struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// TaskResponse is written atomically to responses/<request_id>.json.
// Exactly one of Result/Error is set.
type TaskResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BashCheckRequest is the payload of a security:bash_check task.
type BashCheckRequest struct {
	Command string `json:"command"`
}

// BashCheckResponse is the reply to a security:bash_check task.
type BashCheckResponse struct {
	Decision string `json:"decision"` // "allow" or "deny"
	Reason   string `json:"reason,omitempty"`
}

// AskUserRequest is the payload of an ask_user:ask task.
type AskUserRequest struct {
	Questions []AskUserQuestion `json:"questions"`
}

// AskUserQuestion is one question in an ask_user:ask request.
type AskUserQuestion struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}
