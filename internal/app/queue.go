package app

import (
	"fmt"

	"webpilot/internal/models"
)

func (a *App) GetQueuedMessages(threadID string) ([]*models.QueuedMessage, error) {
	if a.threadService == nil {
		return nil, fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}

	return a.threadService.QueuedMessages(threadID)
}

func (a *App) RemoveQueuedMessage(threadID, mode, queuedID string) (bool, error) {
	if a.threadService == nil {
		return false, fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return false, fmt.Errorf("thread ID is required")
	}
	if queuedID == "" {
		return false, fmt.Errorf("queued message ID is required")
	}

	return a.threadService.RemoveQueuedMessage(threadID, models.QueueMode(mode), queuedID)
}

func (a *App) ClearQueue(threadID, mode string) error {
	if a.threadService == nil {
		return fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}

	return a.threadService.ClearQueue(threadID, models.QueueMode(mode))
}

// DumpQueues clears both queues and returns the concatenated queued text,
// so a cancel can hand the user's pending drafts back to the input box.
func (a *App) DumpQueues(threadID string) (string, error) {
	if a.threadService == nil {
		return "", fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return "", fmt.Errorf("thread ID is required")
	}

	return a.threadService.DumpQueues(threadID)
}
