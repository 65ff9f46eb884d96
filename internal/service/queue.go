package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"webpilot/internal/models"
	"webpilot/internal/utils"
)

// ErrNoActiveRun is returned when a caller enqueues an after-tool-result
// message while no run is in flight. That queue only has meaning mid-run;
// such submissions must start a new run instead.
var ErrNoActiveRun = errors.New("no active run to splice into")

// RunQueue buffers user messages submitted while a workflow run is in
// flight. The two queues are independent: after-tool-result entries are
// spliced into the current run at the next step boundary, after-completion
// entries each start a fresh run once the current one ends.
type RunQueue struct {
	mu              sync.Mutex
	afterToolResult []*models.QueuedMessage
	afterCompletion []*models.QueuedMessage
	runActive       func() bool
}

// NewRunQueue wires the queue to a run-state probe so the after-tool-result
// contract can be enforced at enqueue time.
func NewRunQueue(runActive func() bool) *RunQueue {
	return &RunQueue{
		runActive: runActive,
	}
}

func (q *RunQueue) Enqueue(text string, attachmentIDs []string, mode models.QueueMode) (*models.QueuedMessage, error) {
	if mode == models.QueueModeAfterToolResult && q.runActive != nil && !q.runActive() {
		return nil, ErrNoActiveRun
	}

	return q.enqueue(text, attachmentIDs, mode)
}

// enqueue appends without consulting the run-state probe. The workflow
// runner calls this while holding its state lock, having already
// established that a run is active.
func (q *RunQueue) enqueue(text string, attachmentIDs []string, mode models.QueueMode) (*models.QueuedMessage, error) {
	if strings.TrimSpace(text) == "" && len(attachmentIDs) == 0 {
		return nil, fmt.Errorf("queued message is empty")
	}

	switch mode {
	case models.QueueModeAfterToolResult, models.QueueModeAfterCompletion:
	default:
		return nil, fmt.Errorf("unknown queue mode: %s", mode)
	}

	queued := &models.QueuedMessage{
		ID:            "queued-" + utils.GenerateUUID(),
		Text:          text,
		AttachmentIDs: attachmentIDs,
		Mode:          mode,
		EnqueuedAt:    time.Now().UnixMilli(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	switch mode {
	case models.QueueModeAfterToolResult:
		q.afterToolResult = append(q.afterToolResult, queued)
	case models.QueueModeAfterCompletion:
		q.afterCompletion = append(q.afterCompletion, queued)
	}

	return queued, nil
}

// DrainAfterToolResult removes and returns every pending after-tool-result
// message in FIFO order. The workflow runner calls this at each step
// boundary so queued instructions are folded in before the next step.
func (q *RunQueue) DrainAfterToolResult() []*models.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.afterToolResult
	q.afterToolResult = nil
	return drained
}

// DequeueAfterCompletion pops the oldest after-completion message, or nil
// when the queue is empty. Exactly one component consumes each completion
// event, so a popped message starts exactly one new run.
func (q *RunQueue) DequeueAfterCompletion() *models.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.afterCompletion) == 0 {
		return nil
	}

	queued := q.afterCompletion[0]
	q.afterCompletion = q.afterCompletion[1:]
	return queued
}

// PromoteLeftovers moves any after-tool-result messages still pending at run
// end to the front of the after-completion queue, preserving order. A message
// that missed its splice window still runs, just as a fresh run instead.
func (q *RunQueue) PromoteLeftovers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.afterToolResult) == 0 {
		return
	}

	promoted := make([]*models.QueuedMessage, 0, len(q.afterToolResult)+len(q.afterCompletion))
	for _, queued := range q.afterToolResult {
		queued.Mode = models.QueueModeAfterCompletion
		promoted = append(promoted, queued)
	}
	q.afterCompletion = append(promoted, q.afterCompletion...)
	q.afterToolResult = nil
}

func (q *RunQueue) Remove(mode models.QueueMode, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	target := q.queueFor(mode)
	if target == nil {
		return false
	}

	for i, queued := range *target {
		if queued.ID == id {
			*target = append((*target)[:i], (*target)[i+1:]...)
			return true
		}
	}

	return false
}

func (q *RunQueue) Clear(mode models.QueueMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if target := q.queueFor(mode); target != nil {
		*target = nil
	}
}

// DumpAll clears both queues and returns the concatenated text of every
// pending message, oldest first with the splice queue ahead of the
// completion queue. Used when the user cancels and wants their queued
// drafts returned to the input box instead of lost.
func (q *RunQueue) DumpAll() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var parts []string
	for _, queued := range q.afterToolResult {
		if queued.Text != "" {
			parts = append(parts, queued.Text)
		}
	}
	for _, queued := range q.afterCompletion {
		if queued.Text != "" {
			parts = append(parts, queued.Text)
		}
	}

	q.afterToolResult = nil
	q.afterCompletion = nil

	return strings.Join(parts, "\n\n")
}

// Snapshot returns copies of both queues for display.
func (q *RunQueue) Snapshot() []*models.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*models.QueuedMessage, 0, len(q.afterToolResult)+len(q.afterCompletion))
	for _, queued := range q.afterToolResult {
		copied := *queued
		snapshot = append(snapshot, &copied)
	}
	for _, queued := range q.afterCompletion {
		copied := *queued
		snapshot = append(snapshot, &copied)
	}

	return snapshot
}

func (q *RunQueue) queueFor(mode models.QueueMode) *[]*models.QueuedMessage {
	switch mode {
	case models.QueueModeAfterToolResult:
		return &q.afterToolResult
	case models.QueueModeAfterCompletion:
		return &q.afterCompletion
	default:
		return nil
	}
}
