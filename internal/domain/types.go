// Package domain holds the core entities shared across the host: the
// store, the security gate, the IPC fabric, and the scheduler all speak
// these types rather than each other's internals.
package domain

import "time"

// TrustBit is one of a ServiceTrustConfig's four independent policy bits.
type TrustBit string

const (
	TrustTrue      TrustBit = "true"      // requires scrutiny
	TrustFalse     TrustBit = "false"     // trusted
	TrustForbidden TrustBit = "forbidden" // never allowed
)

// ServiceTrustConfig declares how much a given service is trusted, along
// four independent axes. The zero value (all TrustTrue) is the maximally
// cautious default.
type ServiceTrustConfig struct {
	PublicSource    TrustBit `json:"public_source"`    // returns untrusted content
	SecretData      TrustBit `json:"secret_data"`      // returns privileged data
	PublicSink      TrustBit `json:"public_sink"`      // writes externally observable data
	DangerousWrites TrustBit `json:"dangerous_writes"` // mutates durable state
}

// DefaultServiceTrustConfig returns the maximally cautious trust
// declaration used when a service has no explicit entry.
func DefaultServiceTrustConfig() ServiceTrustConfig {
	return ServiceTrustConfig{
		PublicSource:    TrustTrue,
		SecretData:      TrustTrue,
		PublicSink:      TrustTrue,
		DangerousWrites: TrustTrue,
	}
}

// WorkspaceSecurity is the per-workspace security profile.
type WorkspaceSecurity struct {
	Services        map[string]ServiceTrustConfig `json:"services"`
	ContainsSecrets bool                          `json:"contains_secrets"`
}

// ServiceConfig looks up the trust config for a service, falling back to
// the cautious default when the workspace has no explicit entry.
func (s WorkspaceSecurity) ServiceConfig(service string) ServiceTrustConfig {
	if s.Services == nil {
		return DefaultServiceTrustConfig()
	}
	if cfg, ok := s.Services[service]; ok {
		return cfg
	}
	return DefaultServiceTrustConfig()
}

// ContainerConfig is an opaque blob passed through to worker spawn; the
// host never interprets its contents.
type ContainerConfig map[string]any

// Workspace is the unit of isolation and policy.
type Workspace struct {
	ID              string            `json:"id"`     // canonical address (stable string)
	Name            string            `json:"name"`   // display name
	Folder          string            `json:"folder"` // filesystem slug, unique
	Trigger         string            `json:"trigger"`
	IsAdmin         bool              `json:"is_admin"`
	Security        WorkspaceSecurity `json:"security"`
	ContainerConfig ContainerConfig   `json:"container_config,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// MessageDirection classifies a Message's origin.
type MessageDirection string

const (
	DirectionInbound       MessageDirection = "inbound"
	DirectionOutbound      MessageDirection = "outbound"
	DirectionHostNotice    MessageDirection = "host-notice"
	DirectionSecurityAudit MessageDirection = "security-audit"
)

// Message is a single chat line. (chat_id, id) is unique; Timestamp is an
// ISO-8601 UTC string so lexicographic sort equals chronological order.
type Message struct {
	ID         string            `json:"id"`
	ChatID     string            `json:"chat_id"`
	Sender     string            `json:"sender"`
	SenderName string            `json:"sender_name"`
	Content    string            `json:"content"`
	Timestamp  string            `json:"timestamp"`
	Direction  MessageDirection  `json:"direction"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CursorDirection distinguishes inbound/outbound highwater marks.
type CursorDirection string

const (
	CursorInbound  CursorDirection = "inbound"
	CursorOutbound CursorDirection = "outbound"
)

// ChannelCursor is a per (channel, chat, direction) highwater mark. It
// only ever advances: storing an older value than the current one is a
// no-op.
type ChannelCursor struct {
	Channel   string          `json:"channel"`
	ChatID    string          `json:"chat_id"`
	Direction CursorDirection `json:"direction"`
	Value     string          `json:"value"`
}

// Session binds a workspace folder to the worker identity token the
// worker presents to resume logical conversation context. This is the
// only piece of conversation state the host itself retains — message
// history lives inside the worker.
type Session struct {
	WorkspaceFolder string    `json:"workspace_folder"`
	Token           string    `json:"token"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WorkerProcess is a transient runtime handle; never persisted.
type WorkerProcess struct {
	PID             int
	InvocationTS    int64 // monotonic identifier used by the security gate registry
	WorkspaceFolder string
	StartedAt       time.Time
	LastActivity    time.Time
	Alive           bool
}

// ScheduleKind distinguishes cron-string schedules from fixed intervals.
type ScheduleKind string

const (
	ScheduleCron     ScheduleKind = "cron"
	ScheduleInterval ScheduleKind = "interval"
)

// TaskStatus is the lifecycle state of a ScheduledTask.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
)

// ContextMode controls whether a scheduled task resumes the workspace's
// warm session or starts isolated.
type ContextMode string

const (
	ContextResume   ContextMode = "resume"
	ContextIsolated ContextMode = "isolated"
)

// ScheduledTask is an agent cron job.
type ScheduledTask struct {
	ID             string       `json:"id"`
	WorkspaceFolder string      `json:"workspace_folder"`
	ChatID         string       `json:"chat_id"`
	Prompt         string       `json:"prompt"`
	ScheduleKind   ScheduleKind `json:"schedule_kind"`
	ScheduleValue  string       `json:"schedule_value"`
	ContextMode    ContextMode  `json:"context_mode"`
	NextRun        time.Time    `json:"next_run"`
	LastRun        time.Time    `json:"last_run,omitempty"`
	Status         TaskStatus   `json:"status"`
}

// HostJob is a non-agent scheduled command: same cron surface as
// ScheduledTask, but executes a bounded shell command on the host.
type HostJob struct {
	ID             string       `json:"id"`
	WorkspaceFolder string      `json:"workspace_folder"`
	Command        string       `json:"command"`
	ScheduleKind   ScheduleKind `json:"schedule_kind"`
	ScheduleValue  string       `json:"schedule_value"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	Enabled        bool         `json:"enabled"`
	NextRun        time.Time    `json:"next_run"`
	LastRun        time.Time    `json:"last_run,omitempty"`
}

// HandlerType distinguishes where a gated action's execution logic lives.
type HandlerType string

const (
	HandlerService HandlerType = "service"
	HandlerIPC     HandlerType = "ipc"
)

// PendingApproval is a file-backed record of an in-flight privileged
// request awaiting a human decision.
type PendingApproval struct {
	RequestID       string         `json:"request_id"`
	ShortID         string         `json:"short_id"` // first 8 chars of RequestID
	ToolName        string         `json:"tool_name"`
	SourceWorkspace string         `json:"source_workspace"`
	ChatID          string         `json:"chat_id"`
	RequestData     map[string]any `json:"request_data"`
	HandlerType     HandlerType    `json:"handler_type"`
	CreatedAt       time.Time      `json:"created_at"`
}

// PendingQuestionRecord is a file-backed record of a worker blocked on
// user input via the ask_user flow.
type PendingQuestionRecord struct {
	RequestID       string             `json:"request_id"`
	SourceWorkspace string             `json:"source_workspace"`
	ChatID          string             `json:"chat_id"`
	ChannelName     string             `json:"channel_name"`
	SessionToken    string             `json:"session_token"`
	Questions       []QuestionSpec     `json:"questions"`
	MessageID       string             `json:"message_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// QuestionSpec is one question posed by ask_user.
type QuestionSpec struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// GateDecision is the result of a security gate evaluation.
type GateDecision string

const (
	DecisionAllow       GateDecision = "allow"
	DecisionDeny        GateDecision = "deny"
	DecisionNeedsHuman  GateDecision = "needs_human"
)

// AuditEvent is one security decision log entry.
type AuditEvent struct {
	Decision          GateDecision `json:"decision"`
	ToolName          string       `json:"tool_name"`
	Workspace         string       `json:"workspace"`
	CorruptionTainted bool         `json:"corruption_tainted"`
	SecretTainted     bool         `json:"secret_tainted"`
	Reason            string       `json:"reason"`
	RequestID         string       `json:"request_id"`
	Timestamp         time.Time    `json:"timestamp"`
}
