package app

import (
	"fmt"

	"webpilot/internal/models"
	"webpilot/internal/service"
)

// NavigateBranch moves the active path to the previous or next sibling of
// a message. direction is "prev" or "next". Returns the rebuilt active
// conversation.
func (a *App) NavigateBranch(threadID, messageID, direction string) ([]*models.Message, error) {
	if a.threadService == nil {
		return nil, fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}
	if messageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}

	var branchDirection service.BranchDirection
	switch direction {
	case "prev":
		branchDirection = service.BranchPrev
	case "next":
		branchDirection = service.BranchNext
	default:
		return nil, fmt.Errorf("unknown direction: %s", direction)
	}

	return a.threadService.NavigateBranch(threadID, messageID, branchDirection)
}

// GetSiblingInfo returns a message's position among its siblings for the
// branch switcher ("2 / 3").
func (a *App) GetSiblingInfo(threadID, messageID string) (*service.SiblingInfo, error) {
	if a.threadService == nil {
		return nil, fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}
	if messageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}

	return a.threadService.SiblingInfo(threadID, messageID)
}
