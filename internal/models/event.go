package models

type RunEventType string

const (
	RunEventTypeRunStarted     RunEventType = "run_started"
	RunEventTypeTextDelta      RunEventType = "text_delta"
	RunEventTypeReasoningDelta RunEventType = "reasoning_delta"
	RunEventTypeToolStart      RunEventType = "tool_start"
	RunEventTypeToolDone       RunEventType = "tool_done"
	RunEventTypeUserInjected   RunEventType = "user_injected"
	RunEventTypeRunFinished    RunEventType = "run_finished"
	RunEventTypeRunFailed      RunEventType = "run_failed"
)

// RunEvent is the typed event stream produced by a workflow run. Every event
// carries the ID of the assistant message it belongs to, so the UI can bind
// deltas to the right tree node even after a mid-run splice switches the
// active assistant message.
type RunEvent interface {
	GetType() RunEventType
}

type RunStarted struct {
	ThreadID      string `json:"thread_id"`
	UserMessageID string `json:"user_message_id"`
	MessageID     string `json:"message_id"`
}

func (e RunStarted) GetType() RunEventType {
	return RunEventTypeRunStarted
}

type TextDelta struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}

func (e TextDelta) GetType() RunEventType {
	return RunEventTypeTextDelta
}

type ReasoningDelta struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}

func (e ReasoningDelta) GetType() RunEventType {
	return RunEventTypeReasoningDelta
}

type ToolStart struct {
	MessageID string       `json:"message_id"`
	Call      ToolCallInfo `json:"call"`
}

func (e ToolStart) GetType() RunEventType {
	return RunEventTypeToolStart
}

type ToolDone struct {
	MessageID string       `json:"message_id"`
	Call      ToolCallInfo `json:"call"`
}

func (e ToolDone) GetType() RunEventType {
	return RunEventTypeToolDone
}

// UserInjected announces a queued user message spliced into the running
// workflow, together with the fresh assistant message streaming resumes
// into.
type UserInjected struct {
	UserMessageID string `json:"user_message_id"`
	MessageID     string `json:"message_id"`
	Content       string `json:"content"`
}

func (e UserInjected) GetType() RunEventType {
	return RunEventTypeUserInjected
}

type FinishReason string

const (
	FinishReasonCompleted FinishReason = "completed"
	FinishReasonStopped   FinishReason = "stopped"
	FinishReasonMaxSteps  FinishReason = "max_steps"
)

type RunFinished struct {
	MessageID string       `json:"message_id"`
	Reason    FinishReason `json:"reason"`
}

func (e RunFinished) GetType() RunEventType {
	return RunEventTypeRunFinished
}

type RunFailed struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (e RunFailed) GetType() RunEventType {
	return RunEventTypeRunFailed
}
