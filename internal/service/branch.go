package service

import (
	"fmt"

	"webpilot/internal/models"
	"webpilot/internal/service/store"
)

// BranchDirection selects a sibling relative to the current one.
type BranchDirection int

const (
	BranchPrev BranchDirection = -1
	BranchNext BranchDirection = 1
)

// SiblingInfo describes a message's position among its siblings, for
// rendering the "n / m" branch switcher.
type SiblingInfo struct {
	Index    int               `json:"index"`
	Count    int               `json:"count"`
	Siblings []*models.Message `json:"siblings"`
}

func (r *Runner) SiblingInfo(messageID string) (*SiblingInfo, error) {
	siblings, err := r.store.GetSiblings(r.threadID, messageID)
	if err != nil {
		return nil, err
	}

	index := siblingIndex(siblings, messageID)
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageID)
	}

	return &SiblingInfo{
		Index:    index,
		Count:    len(siblings),
		Siblings: siblings,
	}, nil
}

// Navigate moves the branch selection for the message's parent one sibling
// in the given direction, clamped without wraparound, and returns the
// rebuilt active path. Rejected while a run is streaming: branch pointers
// must not move under a live stream.
func (r *Runner) Navigate(messageID string, direction BranchDirection) ([]*models.Message, error) {
	if r.IsRunning() {
		return nil, ErrRunActive
	}

	siblings, err := r.store.GetSiblings(r.threadID, messageID)
	if err != nil {
		return nil, err
	}

	index := siblingIndex(siblings, messageID)
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageID)
	}

	newIndex := index + int(direction)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(siblings)-1 {
		newIndex = len(siblings) - 1
	}

	if newIndex != index {
		target := siblings[newIndex]
		if err := r.store.SetBranchSelection(r.threadID, store.ParentKey(target.ParentID), target.ID); err != nil {
			return nil, err
		}
	}

	return r.store.ActivePath(r.threadID)
}

// EditUserMessage forks the tree: the edited content becomes a new sibling
// of the original user message, the branch selection moves to it, and a new
// run starts from that point. The original branch stays fully navigable.
func (r *Runner) EditUserMessage(messageID, text string, attachmentIDs []string) error {
	if r.IsRunning() {
		return ErrRunActive
	}

	original, err := r.store.GetMessage(r.threadID, messageID)
	if err != nil {
		return err
	}
	if original.Role != models.MessageRoleUser {
		return fmt.Errorf("message %s is not a user message", messageID)
	}

	edited, err := r.store.AddMessage(r.threadID, &models.Message{
		Role:          models.MessageRoleUser,
		ParentID:      original.ParentID,
		Content:       text,
		AttachmentIDs: attachmentIDs,
	})
	if err != nil {
		return err
	}

	if err := r.store.SetBranchSelection(r.threadID, store.ParentKey(edited.ParentID), edited.ID); err != nil {
		return err
	}

	return r.StartFromUserMessage(edited)
}

// RegenerateResponse destroys the assistant message and its entire subtree,
// then reruns from its parent user turn. Unlike an edit, the replaced
// response is not kept as a sibling.
func (r *Runner) RegenerateResponse(messageID string) error {
	if r.IsRunning() {
		return ErrRunActive
	}

	target, err := r.store.GetMessage(r.threadID, messageID)
	if err != nil {
		return err
	}
	if target.Role != models.MessageRoleAssistant {
		return fmt.Errorf("message %s is not an assistant message", messageID)
	}
	if target.ParentID == "" {
		return fmt.Errorf("assistant message %s has no parent to regenerate from", messageID)
	}

	parent, err := r.store.GetMessage(r.threadID, target.ParentID)
	if err != nil {
		return err
	}

	if err := r.store.DeleteMessageTree(r.threadID, messageID); err != nil {
		return err
	}

	return r.StartFromUserMessage(parent)
}

func siblingIndex(siblings []*models.Message, messageID string) int {
	for i, sibling := range siblings {
		if sibling.ID == messageID {
			return i
		}
	}
	return -1
}
