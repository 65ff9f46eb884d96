package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"webpilot/internal/models"
)

const maxTitleRunes = 30

// GenerateThreadTitle asks the thread's model for a short descriptive title
// based on the active conversation.
func (s *ThreadService) GenerateThreadTitle(ctx context.Context, id string) (string, error) {
	thread, err := s.thread(id)
	if err != nil {
		return "", err
	}

	path, err := s.conversations.ActivePath(id)
	if err != nil {
		return "", err
	}

	var summary strings.Builder
	for _, msg := range path {
		if msg.Content == "" {
			continue
		}

		switch msg.Role {
		case models.MessageRoleUser:
			summary.WriteString("User: ")
		case models.MessageRoleAssistant:
			summary.WriteString("Assistant: ")
		default:
			continue
		}
		summary.WriteString(msg.Content)
		summary.WriteString("\n")
	}

	if summary.Len() == 0 {
		return defaultThreadTitle, nil
	}

	titleMessages := []*schema.Message{
		{
			Role:    schema.System,
			Content: "You are a helpful assistant that generates concise titles for conversations.",
		},
		{
			Role:    schema.User,
			Content: fmt.Sprintf("Based on the following conversation, generate a concise and descriptive title (a few words at most). The title should capture the main topic or question. Only return the title text, nothing else.\nConversation:\n%s", summary.String()),
		},
	}

	chatModel, err := s.registry.GetModel(ctx, thread.Info.Model)
	if err != nil {
		return "", fmt.Errorf("failed to generate thread title: %w", err)
	}

	response, err := chatModel.Generate(ctx, titleMessages)
	if err != nil {
		return "", fmt.Errorf("failed to generate thread title: %w", err)
	}

	title := cleanThreadTitle(response.Content)
	if title == "" {
		return defaultThreadTitle, nil
	}

	return title, nil
}

func cleanThreadTitle(title string) string {
	title = strings.TrimSpace(title)

	if len(title) >= 2 && title[0] == '"' && title[len(title)-1] == '"' {
		title = strings.TrimSpace(title[1 : len(title)-1])
	}

	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = string(runes[:maxTitleRunes-1]) + "..."
	}

	return title
}
