package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"webpilot/internal/models"
	"webpilot/internal/service/store"
	"webpilot/internal/service/tools"
)

//go:embed assets/prompts/agent.txt
var promptContent []byte

const (
	defaultMaxSteps        = 40
	defaultRequestInterval = 3 * time.Second
	persistDebounceWindow  = 100 * time.Millisecond
	eventBufferSize        = 256
)

// ErrRunActive is returned by tree-mutating operations (edit, regenerate,
// branch navigation) while a run owns the streaming assistant message.
var ErrRunActive = errors.New("a run is already active for this thread")

type RunState int

const (
	RunStateIdle RunState = iota
	RunStateRunning
)

// Runner drives workflow runs for one thread: it owns the single-flight
// Idle/Running token, streams model steps into the conversation tree,
// splices queued messages in at step boundaries, and reports terminal state.
// Construct one Runner per open thread.
type Runner struct {
	threadID string
	store    *store.ConversationStore
	modelFn  ModelFactory
	queue    *RunQueue

	tools    []*schema.ToolInfo
	toolsMap map[string]tool.InvokableTool

	mu              sync.Mutex
	config          models.RunConfig
	state           RunState
	cancelFunc      context.CancelFunc
	lastRequestTime time.Time
	lastError       string
	lastMsgError    *models.AssistantError

	// events carries the run event stream for this thread across runs,
	// including runs chained from the after-completion queue. It must have
	// a consumer while runs are active.
	events  chan models.RunEvent
	persist func(f func())
}

func applyRunDefaults(c *models.RunConfig) error {
	c.ModelID = strings.TrimSpace(c.ModelID)
	if c.ModelID == "" {
		return fmt.Errorf("run model is required")
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.RequestInterval < 0 {
		c.RequestInterval = defaultRequestInterval
	}

	return nil
}

func buildSystemPrompt() string {
	prompt := string(promptContent)
	prompt = strings.ReplaceAll(prompt, "[SYSTEM_TIME]", time.Now().Format(time.RFC3339))
	return prompt
}

func NewRunner(ctx context.Context, threadID string, conversations *store.ConversationStore, modelFn ModelFactory, cfg models.RunConfig) (*Runner, error) {
	toolInfos, toolsMap, err := tools.GetAllRegisteredTools(ctx)
	if err != nil {
		return nil, err
	}

	return NewRunnerWithTools(threadID, conversations, modelFn, cfg, toolInfos, toolsMap)
}

func NewRunnerWithTools(threadID string, conversations *store.ConversationStore, modelFn ModelFactory, cfg models.RunConfig, toolInfos []*schema.ToolInfo, toolsMap map[string]tool.InvokableTool) (*Runner, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}
	if err := applyRunDefaults(&cfg); err != nil {
		return nil, err
	}

	r := &Runner{
		threadID: threadID,
		store:    conversations,
		modelFn:  modelFn,
		config:   cfg,
		tools:    toolInfos,
		toolsMap: toolsMap,
		events:   make(chan models.RunEvent, eventBufferSize),
		persist:  debounce.New(persistDebounceWindow),
	}
	r.queue = NewRunQueue(r.IsRunning)

	return r, nil
}

func (r *Runner) ThreadID() string {
	return r.threadID
}

func (r *Runner) Events() <-chan models.RunEvent {
	return r.events
}

func (r *Runner) Queue() *RunQueue {
	return r.queue
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == RunStateRunning
}

// RunError returns the thread-level error of the last run and the
// per-message error attached to the assistant message it failed on. Both
// are nil/empty after a successful or stopped run.
func (r *Runner) RunError() (string, *models.AssistantError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError, r.lastMsgError
}

func (r *Runner) UpdateModelID(modelID string) error {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return fmt.Errorf("run model is required")
	}

	r.mu.Lock()
	r.config.ModelID = modelID
	r.mu.Unlock()
	return nil
}

// Send submits a user message. While a run is active the message is
// enqueued according to mode and queued=true is returned; otherwise a new
// run starts immediately regardless of mode.
func (r *Runner) Send(text string, attachmentIDs []string, mode models.QueueMode) (queued bool, err error) {
	if strings.TrimSpace(text) == "" && len(attachmentIDs) == 0 {
		return false, fmt.Errorf("user input is empty")
	}

	// Enqueue under the state lock. The terminal path flips the state to
	// Idle under this lock before it drains the queues, so a message
	// accepted here always has a drain ahead of it; a message arriving
	// after that flip sees Idle and starts its own run.
	r.mu.Lock()
	if r.state == RunStateRunning {
		_, err := r.queue.enqueue(text, attachmentIDs, mode)
		r.mu.Unlock()
		if err != nil {
			return false, err
		}
		return true, nil
	}
	r.mu.Unlock()

	return false, r.startFromInput(text, attachmentIDs)
}

// Stop cancels the active run, if any. Cancellation is cooperative: the run
// finishes its in-flight step, keeps all partial output, and terminates
// without an error.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancelFunc
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Runner) startFromInput(text string, attachmentIDs []string) error {
	path, err := r.store.ActivePath(r.threadID)
	if err != nil {
		return err
	}

	parentID := ""
	if len(path) > 0 {
		parentID = path[len(path)-1].ID
	}

	userMsg, err := r.store.AddMessage(r.threadID, &models.Message{
		Role:          models.MessageRoleUser,
		ParentID:      parentID,
		Content:       text,
		AttachmentIDs: attachmentIDs,
	})
	if err != nil {
		return err
	}

	return r.StartFromUserMessage(userMsg)
}

// StartFromUserMessage begins a run whose final user turn is an already
// persisted message at the end of the active path. Edit and regenerate use
// this directly after rearranging the tree.
func (r *Runner) StartFromUserMessage(userMsg *models.Message) error {
	r.mu.Lock()
	if r.state == RunStateRunning {
		r.mu.Unlock()
		return ErrRunActive
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.state = RunStateRunning
	r.cancelFunc = cancel
	r.lastError = ""
	r.lastMsgError = nil
	r.mu.Unlock()

	go r.runLoop(runCtx, userMsg)
	return nil
}

func (r *Runner) runConfig() models.RunConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

func (r *Runner) runLoop(ctx context.Context, userMsg *models.Message) {
	cfg := r.runConfig()

	assistantMsg, err := r.store.AddMessage(r.threadID, &models.Message{
		Role:     models.MessageRoleAssistant,
		ParentID: userMsg.ID,
		Model:    cfg.ModelID,
		Provider: ModelProviderOf(cfg.ModelID),
	})
	if err != nil {
		r.finishRun(nil, "", fmt.Errorf("failed to create assistant message: %w", err))
		return
	}

	r.emit(models.RunStarted{
		ThreadID:      r.threadID,
		UserMessageID: userMsg.ID,
		MessageID:     assistantMsg.ID,
	})

	path, err := r.store.ActivePath(r.threadID)
	if err != nil {
		r.finishRun(nil, assistantMsg.ID, err)
		return
	}

	// The freshly created blank assistant message sits at the end of the
	// path; buildHistory skips it as blank.
	history, err := r.buildHistory(path)
	if err != nil {
		r.finishRun(nil, assistantMsg.ID, err)
		return
	}

	acc := newAccumulator(assistantMsg.ID)

	steps := 0
	for steps < cfg.MaxSteps {
		if ctx.Err() != nil {
			r.finishRun(acc, acc.messageID, nil)
			return
		}

		r.waitForNextTurn(cfg.RequestInterval)

		response, err := r.streamStep(ctx, cfg.ModelID, history, acc)
		if err != nil {
			if ctx.Err() != nil {
				r.finishRun(acc, acc.messageID, nil)
				return
			}
			r.finishRun(acc, acc.messageID, fmt.Errorf("model step failed: %w", err))
			return
		}

		history = append(history, response)

		if len(response.ToolCalls) == 0 {
			r.finishStreamed(acc, models.FinishReasonCompleted)
			return
		}

		toolTurns := r.executeToolCalls(ctx, response.ToolCalls, acc)
		history = append(history, toolTurns...)

		// The splice point: this is the only place queued after-tool-result
		// messages enter the run, so a step already in flight can never be
		// interrupted mid-delta.
		injected := r.queue.DrainAfterToolResult()
		if len(injected) > 0 {
			newAssistant, injectedTurns, err := r.spliceQueued(acc, assistantMsg, injected)
			if err != nil {
				r.finishRun(acc, acc.messageID, err)
				return
			}
			assistantMsg = newAssistant
			history = append(history, injectedTurns...)
		}

		steps += 1
	}

	r.finishStreamed(acc, models.FinishReasonMaxSteps)
}

// spliceQueued finalizes the current assistant message exactly as streamed,
// persists the drained messages as user nodes after it in FIFO order, and
// opens a fresh assistant message for the remainder of the run.
func (r *Runner) spliceQueued(acc *accumulator, current *models.Message, injected []*models.QueuedMessage) (*models.Message, []*schema.Message, error) {
	acc.finalize()
	if err := r.flushAccumulator(acc); err != nil {
		return nil, nil, err
	}

	parentID := current.ID
	var turns []*schema.Message
	var userIDs []string
	for _, queued := range injected {
		userMsg, err := r.store.AddMessage(r.threadID, &models.Message{
			Role:          models.MessageRoleUser,
			ParentID:      parentID,
			Content:       queued.Text,
			AttachmentIDs: queued.AttachmentIDs,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to persist queued message: %w", err)
		}

		parentID = userMsg.ID
		userIDs = append(userIDs, userMsg.ID)

		// Build the model turn from the persisted node, so attachments are
		// folded into the continuing run's context as content parts.
		turn, err := r.buildUserTurn(userMsg)
		if err != nil {
			return nil, nil, err
		}
		turns = append(turns, turn)
	}

	cfg := r.runConfig()
	newAssistant, err := r.store.AddMessage(r.threadID, &models.Message{
		Role:     models.MessageRoleAssistant,
		ParentID: parentID,
		Model:    cfg.ModelID,
		Provider: ModelProviderOf(cfg.ModelID),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	acc.rebind(newAssistant.ID)

	for i, queued := range injected {
		r.emit(models.UserInjected{
			UserMessageID: userIDs[i],
			MessageID:     newAssistant.ID,
			Content:       queued.Text,
		})
	}

	return newAssistant, turns, nil
}

// streamStep performs one model step, applying deltas to the accumulator in
// arrival order and scheduling coalesced persistence. Returns the fully
// concatenated step message.
func (r *Runner) streamStep(ctx context.Context, modelID string, history []*schema.Message, acc *accumulator) (*schema.Message, error) {
	chatModel, err := r.modelFn(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if len(r.tools) > 0 {
		chatModel, err = chatModel.WithTools(r.tools)
		if err != nil {
			return nil, err
		}
	}

	reader, err := chatModel.Stream(ctx, history)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, chunk)

		if chunk.ReasoningContent != "" {
			acc.appendReasoning(chunk.ReasoningContent)
			r.emit(models.ReasoningDelta{MessageID: acc.messageID, Delta: chunk.ReasoningContent})
			r.schedulePersist(acc)
		}
		if chunk.Content != "" {
			acc.appendText(chunk.Content)
			r.emit(models.TextDelta{MessageID: acc.messageID, Delta: chunk.Content})
			r.schedulePersist(acc)
		}
	}

	if len(chunks) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to concatenate stream chunks: %w", err)
	}

	return response, nil
}

// executeToolCalls runs each tool call of a step in order, tracking status
// transitions on the accumulator and building the tool-result turns for
// model context. A result shaped like {"error": ...} marks the call failed
// without hiding the payload from the model.
func (r *Runner) executeToolCalls(ctx context.Context, calls []schema.ToolCall, acc *accumulator) []*schema.Message {
	var turns []*schema.Message
	for _, call := range calls {
		info := models.ToolCallInfo{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
			Status:    models.ToolCallStatusPending,
		}
		if acc.startToolCall(info) {
			r.emit(models.ToolStart{MessageID: acc.messageID, Call: info})
			r.schedulePersist(acc)
		}

		acc.markToolCallRunning(call.ID)

		result, err := r.invokeTool(ctx, call)

		errText := ""
		content := result
		if err != nil {
			errText = err.Error()
			content = fmt.Sprintf("Tool %s call failed: %v", call.Function.Name, err)
		} else if errValue := gjson.Get(result, "error"); gjson.Valid(result) && errValue.Exists() {
			errText = errValue.String()
		}

		if updated := acc.finishToolCall(call.ID, result, errText); updated != nil {
			r.emit(models.ToolDone{MessageID: acc.messageID, Call: *updated})
			r.schedulePersist(acc)
		}

		turns = append(turns, &schema.Message{
			Role:       schema.Tool,
			ToolCallID: call.ID,
			Content:    content,
		})
	}

	return turns
}

func (r *Runner) invokeTool(ctx context.Context, call schema.ToolCall) (string, error) {
	targetTool, exists := r.toolsMap[call.Function.Name]
	if !exists {
		return "", fmt.Errorf("tool not found: %s", call.Function.Name)
	}

	return targetTool.InvokableRun(ctx, call.Function.Arguments)
}

// schedulePersist snapshots the accumulator synchronously and coalesces the
// actual write, so rapid deltas produce a bounded number of store updates.
func (r *Runner) schedulePersist(acc *accumulator) {
	messageID := acc.messageID
	content := acc.text
	reasoning := acc.reasoning
	toolCalls := append([]models.ToolCallInfo(nil), acc.toolCalls...)
	segments := append([]models.Segment(nil), acc.segments...)

	r.persist(func() {
		err := r.store.UpdateMessage(r.threadID, messageID, func(msg *models.Message) error {
			msg.Content = content
			msg.Reasoning = reasoning
			msg.ToolCalls = toolCalls
			msg.Segments = segments
			return nil
		})
		if err != nil {
			fmt.Printf("Failed to persist streaming update for %s: %v\n", messageID, err)
		}
	})
}

func (r *Runner) flushAccumulator(acc *accumulator) error {
	// Replace any pending debounced write with the final snapshot before
	// writing synchronously, so a stale coalesced update cannot land after
	// the finalized state.
	r.schedulePersist(acc)

	return r.store.UpdateMessage(r.threadID, acc.messageID, func(msg *models.Message) error {
		acc.apply(msg)
		return nil
	})
}

// finishStreamed ends a run that terminated through the normal step loop.
func (r *Runner) finishStreamed(acc *accumulator, reason models.FinishReason) {
	acc.finalize()
	if err := r.flushAccumulator(acc); err != nil {
		fmt.Printf("Failed to finalize assistant message %s: %v\n", acc.messageID, err)
	}

	r.emit(models.RunFinished{MessageID: acc.messageID, Reason: reason})
	r.becomeIdle()
	r.drainAfterCompletion()
}

// finishRun ends a run terminally. A nil error is cancellation: partial
// output stays, no error surfaces. A non-nil error is recorded both at
// thread level and against the assistant message, but never into message
// content.
func (r *Runner) finishRun(acc *accumulator, messageID string, runErr error) {
	if acc != nil {
		acc.finalize()
		if err := r.flushAccumulator(acc); err != nil {
			fmt.Printf("Failed to finalize assistant message %s: %v\n", acc.messageID, err)
		}
	}

	if runErr == nil {
		r.emit(models.RunFinished{MessageID: messageID, Reason: models.FinishReasonStopped})
	} else {
		r.mu.Lock()
		r.lastError = runErr.Error()
		if messageID != "" {
			r.lastMsgError = &models.AssistantError{
				MessageID: messageID,
				Error:     runErr.Error(),
			}
		}
		r.mu.Unlock()

		r.emit(models.RunFailed{MessageID: messageID, Error: runErr.Error()})
	}

	r.becomeIdle()
	r.drainAfterCompletion()
}

func (r *Runner) becomeIdle() {
	r.mu.Lock()
	r.state = RunStateIdle
	if r.cancelFunc != nil {
		r.cancelFunc()
		r.cancelFunc = nil
	}
	r.mu.Unlock()
}

// drainAfterCompletion pops at most one queued after-completion message and
// starts a brand-new run with it. Every terminal path calls this exactly
// once, which keeps a single consumer per completion event.
func (r *Runner) drainAfterCompletion() {
	// Splice-queue messages that never met a step boundary are not lost;
	// they run ahead of the completion queue.
	r.queue.PromoteLeftovers()

	queued := r.queue.DequeueAfterCompletion()
	if queued == nil {
		return
	}

	if err := r.startFromInput(queued.Text, queued.AttachmentIDs); err != nil {
		fmt.Printf("Failed to start queued run for thread %s: %v\n", r.threadID, err)
	}
}

func (r *Runner) waitForNextTurn(interval time.Duration) {
	if interval <= 0 {
		return
	}

	r.mu.Lock()
	last := r.lastRequestTime
	r.mu.Unlock()

	if !last.IsZero() {
		if sleep := interval - time.Since(last); sleep > 0 {
			time.Sleep(sleep)
		}
	}

	r.mu.Lock()
	r.lastRequestTime = time.Now()
	r.mu.Unlock()
}

func (r *Runner) emit(event models.RunEvent) {
	r.events <- event
}
