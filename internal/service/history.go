package service

import (
	"encoding/base64"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"webpilot/internal/models"
)

// buildHistory converts the active conversation path into model input.
// Blank messages (no content, attachments or tool calls) are skipped.
// Assistant tool calls are replayed as assistant tool-call turns followed by
// their tool-result turns, so the model sees the same exchange it produced.
// Per-message errors are deliberately absent: they are never part of model
// context.
func (r *Runner) buildHistory(path []*models.Message) ([]*schema.Message, error) {
	history := make([]*schema.Message, 0, len(path)+1)
	history = append(history, &schema.Message{
		Role:    schema.System,
		Content: buildSystemPrompt(),
	})

	for _, msg := range path {
		if msg.IsBlank() {
			continue
		}

		switch msg.Role {
		case models.MessageRoleUser:
			turn, err := r.buildUserTurn(msg)
			if err != nil {
				return nil, err
			}
			history = append(history, turn)
		case models.MessageRoleAssistant:
			history = append(history, buildAssistantTurns(msg)...)
		default:
			return nil, fmt.Errorf("unknown message role: %s", msg.Role)
		}
	}

	return history, nil
}

func (r *Runner) buildUserTurn(msg *models.Message) (*schema.Message, error) {
	turn := &schema.Message{
		Role:    schema.User,
		Content: msg.Content,
	}

	if len(msg.AttachmentIDs) == 0 {
		return turn, nil
	}

	parts := make([]schema.ChatMessagePart, 0, len(msg.AttachmentIDs)+1)
	if msg.Content != "" {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: msg.Content,
		})
	}

	for _, attachmentID := range msg.AttachmentIDs {
		att, err := r.store.GetAttachment(r.threadID, attachmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load attachment %s: %w", attachmentID, err)
		}
		parts = append(parts, attachmentPart(att))
	}

	turn.Content = ""
	turn.MultiContent = parts
	return turn, nil
}

func attachmentPart(att *models.Attachment) schema.ChatMessagePart {
	switch att.Kind {
	case models.AttachmentKindImage:
		dataURL := fmt.Sprintf("data:%s;base64,%s", att.MimeType, base64.StdEncoding.EncodeToString(att.Data))
		return schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL: dataURL,
			},
		}
	case models.AttachmentKindText:
		return schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: string(att.Data),
		}
	default:
		return schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: fmt.Sprintf("[attached file: %s (%s)]", att.Name, att.MimeType),
		}
	}
}

func buildAssistantTurns(msg *models.Message) []*schema.Message {
	assistant := &schema.Message{
		Role:    schema.Assistant,
		Content: msg.Content,
	}

	turns := []*schema.Message{assistant}
	for _, call := range msg.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})

		content := call.Result
		if call.Status == models.ToolCallStatusError {
			content = fmt.Sprintf("Tool %s call failed: %s", call.Name, call.Error)
		}
		turns = append(turns, &schema.Message{
			Role:       schema.Tool,
			ToolCallID: call.ID,
			Content:    content,
		})
	}

	return turns
}
