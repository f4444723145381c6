package ai

import (
	"context"
	"encoding/json"
)

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Pending reports whether the run is still being worked on by the service and
// should simply be polled again.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress
}

const submitToolOutputsAction = "submit_tool_outputs"

type ToolCall struct {
	ID           string
	FunctionName string
	// Arguments is the raw JSON text produced by the model; it may be empty.
	Arguments string
}

type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus
	// RequiredActionType is set while Status is requires_action.
	RequiredActionType string
	RequiredToolCalls  []ToolCall
	LastError          string
}

// NeedsToolOutputs is true when the run is paused waiting for tool results.
func (r *Run) NeedsToolOutputs() bool {
	return r.Status == RunRequiresAction && r.RequiredActionType == submitToolOutputsAction
}

type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type TextBlock struct {
	Value       string
	Annotations json.RawMessage
}

type ThreadMessage struct {
	ID    string
	Role  string
	RunID string
	Text  []TextBlock
}

type ListOptions struct {
	Order string // "asc" | "desc"
	Limit int
}

// Assistant is the thread/run protocol of a hosted LLM assistant.
type Assistant interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)
	ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]ThreadMessage, error)
}
