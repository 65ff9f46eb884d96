package service

import (
	"webpilot/internal/models"
	"webpilot/internal/utils"
)

// accumulator holds the in-memory state of the assistant message currently
// being streamed. Deltas are applied synchronously in arrival order; only
// their persistence is batched elsewhere. A run of consecutive text deltas
// coalesces into one segment, and every tool call opens a new segment, so
// the segment list reproduces the exact interleaving the model produced.
type accumulator struct {
	messageID string
	text      string
	reasoning string
	toolCalls []models.ToolCallInfo
	segments  []models.Segment
}

func newAccumulator(messageID string) *accumulator {
	return &accumulator{messageID: messageID}
}

// rebind resets all accumulated state and targets a new assistant message.
// Called when a mid-run splice finalizes the current message and streaming
// continues into a fresh one.
func (a *accumulator) rebind(messageID string) {
	a.messageID = messageID
	a.text = ""
	a.reasoning = ""
	a.toolCalls = nil
	a.segments = nil
}

func (a *accumulator) appendText(delta string) {
	if delta == "" {
		return
	}

	a.text += delta

	if n := len(a.segments); n > 0 && a.segments[n-1].Type == models.SegmentTypeText {
		a.segments[n-1].Text += delta
		return
	}

	a.segments = append(a.segments, models.Segment{
		Type: models.SegmentTypeText,
		ID:   "seg-" + utils.GenerateUUID(),
		Text: delta,
	})
}

func (a *accumulator) appendReasoning(delta string) {
	a.reasoning += delta
}

// startToolCall registers a new tool call and its segment. Returns false if
// the tool call ID is already tracked; a tool_call segment is created at
// most once per distinct ID.
func (a *accumulator) startToolCall(call models.ToolCallInfo) bool {
	for _, existing := range a.toolCalls {
		if existing.ID == call.ID {
			return false
		}
	}

	a.toolCalls = append(a.toolCalls, call)
	a.segments = append(a.segments, models.Segment{
		Type:       models.SegmentTypeToolCall,
		ID:         "seg-" + utils.GenerateUUID(),
		ToolCallID: call.ID,
	})

	return true
}

func (a *accumulator) markToolCallRunning(id string) {
	for i := range a.toolCalls {
		if a.toolCalls[i].ID == id && a.toolCalls[i].Status == models.ToolCallStatusPending {
			a.toolCalls[i].Status = models.ToolCallStatusRunning
			return
		}
	}
}

// finishToolCall resolves a tracked tool call in place and returns the
// updated copy, or nil if the ID is unknown.
func (a *accumulator) finishToolCall(id, result, errText string) *models.ToolCallInfo {
	for i := range a.toolCalls {
		if a.toolCalls[i].ID != id {
			continue
		}

		if errText != "" {
			a.toolCalls[i].Status = models.ToolCallStatusError
			a.toolCalls[i].Error = errText
		} else {
			a.toolCalls[i].Status = models.ToolCallStatusCompleted
			a.toolCalls[i].Result = result
		}

		updated := a.toolCalls[i]
		return &updated
	}

	return nil
}

// finalize closes out the accumulated state. If final text exists but no
// segment was ever recorded, a single text segment is synthesized so the
// message always renders. Calling finalize repeatedly is safe and yields
// the same result.
func (a *accumulator) finalize() {
	if a.text != "" && len(a.segments) == 0 {
		a.segments = append(a.segments, models.Segment{
			Type: models.SegmentTypeText,
			ID:   "seg-" + utils.GenerateUUID(),
			Text: a.text,
		})
	}
}

// apply copies the accumulated state onto a persisted message.
func (a *accumulator) apply(msg *models.Message) {
	msg.Content = a.text
	msg.Reasoning = a.reasoning
	msg.ToolCalls = append([]models.ToolCallInfo(nil), a.toolCalls...)
	msg.Segments = append([]models.Segment(nil), a.segments...)
}
