package models

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type ToolCallStatus string

const (
	ToolCallStatusPending   ToolCallStatus = "pending"
	ToolCallStatusRunning   ToolCallStatus = "running"
	ToolCallStatusCompleted ToolCallStatus = "completed"
	ToolCallStatusError     ToolCallStatus = "error"
)

// ToolCallInfo tracks one tool invocation produced by the model. Arguments
// and Result are raw JSON strings; the engine never interprets them.
type ToolCallInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments string         `json:"arguments"`
	Status    ToolCallStatus `json:"status"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type SegmentType string

const (
	SegmentTypeText     SegmentType = "text"
	SegmentTypeToolCall SegmentType = "tool_call"
)

// Segment is one ordered unit of assistant output: either a run of text or
// a reference to a tool call. The segment list preserves the interleaving
// the model produced, so "wrote text, ran a tool, wrote more text" renders
// exactly in that order.
type Segment struct {
	Type       SegmentType `json:"type"`
	ID         string      `json:"id"`
	Text       string      `json:"text,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// Message is a node in a thread's conversation tree. ParentID is empty for
// roots; siblings share a ParentID and are ordered by Seq.
type Message struct {
	ID            string         `json:"id"`
	ThreadID      string         `json:"thread_id"`
	ParentID      string         `json:"parent_id,omitempty"`
	Role          MessageRole    `json:"role"`
	Content       string         `json:"content"`
	Reasoning     string         `json:"reasoning,omitempty"`
	ToolCalls     []ToolCallInfo `json:"tool_calls,omitempty"`
	Segments      []Segment      `json:"segments,omitempty"`
	AttachmentIDs []string       `json:"attachment_ids,omitempty"`
	Model         string         `json:"model,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	Seq           uint64         `json:"seq"`
}

// IsBlank reports whether the message carries nothing worth sending to the
// model: no content, no attachments and no tool calls.
func (m *Message) IsBlank() bool {
	return m.Content == "" && len(m.AttachmentIDs) == 0 && len(m.ToolCalls) == 0
}

type AttachmentKind string

const (
	AttachmentKindText  AttachmentKind = "text"
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindFile  AttachmentKind = "file"
)

// Attachment is an opaque blob referenced by user messages. The engine only
// passes it through as model input content parts.
type Attachment struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	Kind     AttachmentKind `json:"kind"`
	Name     string         `json:"name,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
	Data     []byte         `json:"data,omitempty"`
}
