package models

type QueueMode string

const (
	// QueueModeAfterToolResult splices the message into the current run at
	// the next step boundary, without waiting for the run to finish.
	QueueModeAfterToolResult QueueMode = "after_tool_result"
	// QueueModeAfterCompletion holds the message until the current run ends;
	// it then starts a brand-new run.
	QueueModeAfterCompletion QueueMode = "after_completion"
)

// QueuedMessage is a user submission buffered while a run is in flight. It
// lives only in memory: it becomes a persisted tree node when dequeued.
type QueuedMessage struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AttachmentIDs []string  `json:"attachment_ids,omitempty"`
	Mode          QueueMode `json:"mode"`
	EnqueuedAt    int64     `json:"enqueued_at"`
}
