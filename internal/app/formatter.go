package app

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"webpilot/internal/models"
)

const maxEmittedPayloadChars = 4000

// formatRunEvent shapes a run event for the frontend event bus. Tool
// payloads can be arbitrarily large page dumps, so they are truncated
// before crossing the bridge; the full values stay in the store.
func formatRunEvent(threadID string, event models.RunEvent) map[string]any {
	payload := map[string]any{
		"thread_id": threadID,
		"type":      string(event.GetType()),
	}

	switch e := event.(type) {
	case models.ToolStart:
		e.Call = trimToolCall(e.Call)
		payload["data"] = e
	case models.ToolDone:
		e.Call = trimToolCall(e.Call)
		payload["data"] = e
	default:
		payload["data"] = event
	}

	return payload
}

func trimToolCall(call models.ToolCallInfo) models.ToolCallInfo {
	call.Arguments = truncatePayload(call.Arguments)
	call.Result = truncatePayload(call.Result)
	return call
}

func truncatePayload(payload string) string {
	if utf8.RuneCountInString(payload) <= maxEmittedPayloadChars {
		return payload
	}

	// Compact JSON first; structured payloads often fit once whitespace is
	// stripped.
	if gjson.Valid(payload) {
		compact := gjson.Get(payload, "@ugly").Raw
		if compact != "" {
			if utf8.RuneCountInString(compact) <= maxEmittedPayloadChars {
				return compact
			}
			payload = compact
		}
	}

	runes := []rune(payload)
	return string(runes[:maxEmittedPayloadChars]) + "... (truncated)"
}
