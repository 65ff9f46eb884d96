package service

import (
	"context"
	"fmt"
	"sync"

	"webpilot/internal/config"
	"webpilot/internal/models"
	"webpilot/internal/service/store"
)

const defaultThreadTitle = "New chat"

// ThreadService owns one runner per open thread and fronts every operation
// the app layer needs: thread CRUD, message sending, branch navigation, and
// queue management.
type ThreadService struct {
	cfg           config.Config
	registry      *ModelRegistry
	conversations *store.ConversationStore

	threads map[string]*ThreadContext
	mu      sync.RWMutex
}

type ThreadContext struct {
	Info   *models.ThreadInfo
	Runner *Runner
}

func NewThreadService(ctx context.Context, cfg config.Config, kv *store.Store) (*ThreadService, error) {
	service := &ThreadService{
		cfg:           cfg,
		registry:      NewModelRegistry(cfg),
		conversations: store.NewConversationStore(kv),
		threads:       make(map[string]*ThreadContext),
	}

	if err := service.loadThreadsFromStorage(ctx); err != nil {
		return nil, err
	}

	return service, nil
}

func (s *ThreadService) Store() *store.ConversationStore {
	return s.conversations
}

func (s *ThreadService) ListModels() []*models.ModelInfo {
	return s.registry.AvailableModelInfos()
}

func (s *ThreadService) CreateThread(ctx context.Context) (*models.ThreadInfo, error) {
	modelID := s.registry.DefaultModelInfo().ID

	info, err := s.conversations.CreateThread(defaultThreadTitle, modelID)
	if err != nil {
		return nil, err
	}

	runner, err := s.newRunner(ctx, info)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.threads[info.ID] = &ThreadContext{
		Info:   info,
		Runner: runner,
	}
	s.mu.Unlock()

	return info, nil
}

func (s *ThreadService) ListThreads() []*models.ThreadInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*models.ThreadInfo, 0, len(s.threads))
	for _, thread := range s.threads {
		infos = append(infos, thread.Info)
	}

	return infos
}

func (s *ThreadService) DeleteThread(id string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	if thread.Runner.IsRunning() {
		thread.Runner.Stop()
	}

	if err := s.conversations.DeleteThread(id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.threads, id)
	s.mu.Unlock()

	return nil
}

// SendMessage starts a run or, when one is active, enqueues the message
// according to mode. Returns true when the message was queued.
func (s *ThreadService) SendMessage(id, text string, attachmentIDs []string, mode models.QueueMode) (bool, error) {
	thread, err := s.thread(id)
	if err != nil {
		return false, err
	}

	return thread.Runner.Send(text, attachmentIDs, mode)
}

func (s *ThreadService) StopRun(id string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	thread.Runner.Stop()
	return nil
}

func (s *ThreadService) EditUserMessage(id, messageID, text string, attachmentIDs []string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	return thread.Runner.EditUserMessage(messageID, text, attachmentIDs)
}

func (s *ThreadService) RegenerateResponse(id, messageID string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	return thread.Runner.RegenerateResponse(messageID)
}

func (s *ThreadService) NavigateBranch(id, messageID string, direction BranchDirection) ([]*models.Message, error) {
	thread, err := s.thread(id)
	if err != nil {
		return nil, err
	}

	return thread.Runner.Navigate(messageID, direction)
}

func (s *ThreadService) SiblingInfo(id, messageID string) (*SiblingInfo, error) {
	thread, err := s.thread(id)
	if err != nil {
		return nil, err
	}

	return thread.Runner.SiblingInfo(messageID)
}

// ActiveConversation returns the linear message sequence currently shown
// for the thread.
func (s *ThreadService) ActiveConversation(id string) ([]*models.Message, error) {
	if _, err := s.thread(id); err != nil {
		return nil, err
	}

	return s.conversations.ActivePath(id)
}

func (s *ThreadService) IsRunning(id string) (bool, error) {
	thread, err := s.thread(id)
	if err != nil {
		return false, err
	}

	return thread.Runner.IsRunning(), nil
}

func (s *ThreadService) RunError(id string) (string, *models.AssistantError, error) {
	thread, err := s.thread(id)
	if err != nil {
		return "", nil, err
	}

	threadErr, msgErr := thread.Runner.RunError()
	return threadErr, msgErr, nil
}

func (s *ThreadService) RunEvents(id string) (<-chan models.RunEvent, error) {
	thread, err := s.thread(id)
	if err != nil {
		return nil, err
	}

	return thread.Runner.Events(), nil
}

func (s *ThreadService) QueuedMessages(id string) ([]*models.QueuedMessage, error) {
	thread, err := s.thread(id)
	if err != nil {
		return nil, err
	}

	return thread.Runner.Queue().Snapshot(), nil
}

func (s *ThreadService) RemoveQueuedMessage(id string, mode models.QueueMode, queuedID string) (bool, error) {
	thread, err := s.thread(id)
	if err != nil {
		return false, err
	}

	return thread.Runner.Queue().Remove(mode, queuedID), nil
}

func (s *ThreadService) ClearQueue(id string, mode models.QueueMode) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	thread.Runner.Queue().Clear(mode)
	return nil
}

// DumpQueues empties both queues and returns the concatenated drafts, for
// handing back to the input box after a cancel.
func (s *ThreadService) DumpQueues(id string) (string, error) {
	thread, err := s.thread(id)
	if err != nil {
		return "", err
	}

	return thread.Runner.Queue().DumpAll(), nil
}

func (s *ThreadService) SaveAttachment(id string, kind models.AttachmentKind, name, mimeType string, data []byte) (*models.Attachment, error) {
	if _, err := s.thread(id); err != nil {
		return nil, err
	}

	return s.conversations.SaveAttachment(&models.Attachment{
		ThreadID: id,
		Kind:     kind,
		Name:     name,
		MimeType: mimeType,
		Data:     data,
	})
}

func (s *ThreadService) UpdateThreadModel(id, modelID string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	if !s.registry.IsModelAvailable(modelID) {
		return fmt.Errorf("model is not available: %s", modelID)
	}

	if err := thread.Runner.UpdateModelID(modelID); err != nil {
		return err
	}

	err = s.conversations.UpdateThreadInfo(id, func(info *models.ThreadInfo) {
		info.Model = modelID
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	thread.Info.Model = modelID
	s.mu.Unlock()

	return nil
}

func (s *ThreadService) UpdateThreadTitle(id, title string) error {
	thread, err := s.thread(id)
	if err != nil {
		return err
	}

	err = s.conversations.UpdateThreadInfo(id, func(info *models.ThreadInfo) {
		info.Title = title
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	thread.Info.Title = title
	s.mu.Unlock()

	return nil
}

// IsFirstExchange reports whether the thread has at most one user turn, so
// the app knows when to autogenerate a title.
func (s *ThreadService) IsFirstExchange(id string) (bool, error) {
	if _, err := s.thread(id); err != nil {
		return false, err
	}

	messages, err := s.conversations.GetMessages(id)
	if err != nil {
		return false, err
	}

	userCount := 0
	for _, msg := range messages {
		if msg.Role == models.MessageRoleUser {
			userCount += 1
		}
	}

	return userCount <= 1, nil
}

func (s *ThreadService) thread(id string) (*ThreadContext, error) {
	s.mu.RLock()
	thread, exists := s.threads[id]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}

	return thread, nil
}

func (s *ThreadService) newRunner(ctx context.Context, info *models.ThreadInfo) (*Runner, error) {
	return NewRunner(ctx, info.ID, s.conversations, s.registry.GetModel, models.RunConfig{
		ModelID:         info.Model,
		MaxSteps:        s.cfg.MaxSteps,
		RequestInterval: s.cfg.RequestInterval(),
	})
}

func (s *ThreadService) loadThreadsFromStorage(ctx context.Context) error {
	infos, err := s.conversations.ListThreads()
	if err != nil {
		return err
	}

	for _, info := range infos {
		if !s.registry.IsModelAvailable(info.Model) {
			info.Model = s.registry.DefaultModelInfo().ID
		}

		runner, err := s.newRunner(ctx, info)
		if err != nil {
			return err
		}

		s.threads[info.ID] = &ThreadContext{
			Info:   info,
			Runner: runner,
		}
	}

	return nil
}
