package app

import (
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"webpilot/internal/models"
)

// SendMessage submits user input to a thread. While a run is streaming the
// message is queued according to mode ("after_tool_result" or
// "after_completion"); otherwise a new run starts. Returns true when the
// message was queued.
func (a *App) SendMessage(threadID, text string, attachmentIDs []string, mode string) (bool, error) {
	if a.threadService == nil {
		return false, fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return false, fmt.Errorf("thread ID is required")
	}

	queueMode := models.QueueMode(mode)
	if queueMode == "" {
		queueMode = models.QueueModeAfterCompletion
	}

	return a.threadService.SendMessage(threadID, text, attachmentIDs, queueMode)
}

func (a *App) StopRun(threadID string) error {
	if a.threadService == nil {
		return fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}

	return a.threadService.StopRun(threadID)
}

// EditMessage forks the conversation at a user message: the edit becomes a
// sibling branch and a new run starts from it.
func (a *App) EditMessage(threadID, messageID, text string, attachmentIDs []string) error {
	if a.threadService == nil {
		return fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}

	return a.threadService.EditUserMessage(threadID, messageID, text, attachmentIDs)
}

// RegenerateResponse deletes an assistant response (and everything under
// it) and streams a replacement.
func (a *App) RegenerateResponse(threadID, messageID string) error {
	if a.threadService == nil {
		return fmt.Errorf("thread service not initialized")
	}
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}

	return a.threadService.RegenerateResponse(threadID, messageID)
}

func (a *App) GetRunState(threadID string) (map[string]any, error) {
	if a.threadService == nil {
		return nil, fmt.Errorf("thread service not initialized")
	}

	running, err := a.threadService.IsRunning(threadID)
	if err != nil {
		return nil, err
	}

	threadErr, msgErr, err := a.threadService.RunError(threadID)
	if err != nil {
		return nil, err
	}

	state := map[string]any{
		"running": running,
		"error":   threadErr,
	}
	if msgErr != nil {
		state["last_assistant_error"] = msgErr
	}

	return state, nil
}

func (a *App) ListModels() []*models.ModelInfo {
	if a.threadService == nil {
		return []*models.ModelInfo{}
	}

	return a.threadService.ListModels()
}

// startEventPump forwards a thread's run events to the frontend. One pump
// per thread, started lazily and kept for the app's lifetime; it also
// triggers title generation after the first successful exchange.
func (a *App) startEventPump(threadID string) {
	a.pumpsMu.Lock()
	if a.pumps[threadID] {
		a.pumpsMu.Unlock()
		return
	}
	a.pumps[threadID] = true
	a.pumpsMu.Unlock()

	events, err := a.threadService.RunEvents(threadID)
	if err != nil {
		return
	}

	go func() {
		for event := range events {
			runtime.EventsEmit(a.appContext(), "run:event", formatRunEvent(threadID, event))

			if finished, ok := event.(models.RunFinished); ok && finished.Reason == models.FinishReasonCompleted {
				a.maybeGenerateTitle(threadID)
			}
		}
	}()
}

func (a *App) maybeGenerateTitle(threadID string) {
	isFirst, err := a.threadService.IsFirstExchange(threadID)
	if err != nil || !isFirst {
		return
	}

	title, err := a.threadService.GenerateThreadTitle(a.appContext(), threadID)
	if err != nil {
		fmt.Printf("Failed to generate thread title: %v\n", err)
		return
	}

	if err := a.threadService.UpdateThreadTitle(threadID, title); err != nil {
		fmt.Printf("Failed to update thread title: %v\n", err)
		return
	}

	runtime.EventsEmit(a.appContext(), "thread:title_updated", map[string]string{
		"thread_id": threadID,
		"title":     title,
	})
}
