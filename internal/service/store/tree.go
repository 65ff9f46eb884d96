package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"webpilot/internal/models"
	"webpilot/internal/utils"
)

const (
	threadKeyPrefix     = "thread:"
	attachmentKeyPrefix = "attachment:"
)

// RootParentKey is the branch-state key used for root messages, which have
// no parent ID of their own.
const RootParentKey = "root"

var (
	ErrThreadNotFound     = errors.New("thread not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// threadRecord is the unit of persistence: one JSON blob per thread holding
// the full message tree and its branch-selection state. Streaming updates
// rewrite the record; that is acceptable because all writes for a thread are
// funneled through a single workflow runner.
type threadRecord struct {
	Info        *models.ThreadInfo `json:"info"`
	Messages    []*models.Message  `json:"messages"`
	BranchState map[string]string  `json:"branch_state"`
	NextSeq     uint64             `json:"next_seq"`
}

// ConversationStore persists threads as message trees and answers the
// structural queries the engine needs: sibling sets, subtree deletion and
// active-path reconstruction.
type ConversationStore struct {
	kv *Store
}

func NewConversationStore(kv *Store) *ConversationStore {
	return &ConversationStore{kv: kv}
}

func threadKey(id string) []byte {
	return []byte(threadKeyPrefix + id)
}

func attachmentKey(threadID, id string) []byte {
	return []byte(attachmentKeyPrefix + threadID + ":" + id)
}

// ParentKey maps a message's parent ID to its branch-state key.
func ParentKey(parentID string) string {
	if parentID == "" {
		return RootParentKey
	}
	return parentID
}

func decodeThread(value []byte, id string) (*threadRecord, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}

	var record threadRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread %s: %w", id, err)
	}
	if record.Info == nil {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if record.BranchState == nil {
		record.BranchState = make(map[string]string)
	}

	return &record, nil
}

func loadThread(bucket *bolt.Bucket, id string) (*threadRecord, error) {
	return decodeThread(bucket.Get(threadKey(id)), id)
}

func saveThread(bucket *bolt.Bucket, record *threadRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal thread %s: %w", record.Info.ID, err)
	}
	return bucket.Put(threadKey(record.Info.ID), data)
}

func (c *ConversationStore) CreateThread(title, modelID string) (*models.ThreadInfo, error) {
	now := time.Now().UnixMilli()
	info := &models.ThreadInfo{
		ID:        "thread-" + utils.GenerateUUID(),
		Title:     title,
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	record := &threadRecord{
		Info:        info,
		Messages:    []*models.Message{},
		BranchState: make(map[string]string),
	}

	err := c.kv.update(func(bucket *bolt.Bucket) error {
		return saveThread(bucket, record)
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (c *ConversationStore) GetThreadInfo(id string) (*models.ThreadInfo, error) {
	value, err := c.kv.get(threadKey(id))
	if err != nil {
		return nil, err
	}

	record, err := decodeThread(value, id)
	if err != nil {
		return nil, err
	}

	return record.Info, nil
}

func (c *ConversationStore) ListThreads() ([]*models.ThreadInfo, error) {
	entries, err := c.kv.list([]byte(threadKeyPrefix))
	if err != nil {
		return nil, err
	}

	infos := make([]*models.ThreadInfo, 0, len(entries))
	for key, value := range entries {
		if len(value) == 0 {
			continue
		}

		var record threadRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thread %s: %w", key, err)
		}
		if record.Info == nil {
			continue
		}

		infos = append(infos, record.Info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt > infos[j].CreatedAt
	})

	return infos, nil
}

func (c *ConversationStore) UpdateThreadInfo(id string, mutate func(info *models.ThreadInfo)) error {
	return c.kv.update(func(bucket *bolt.Bucket) error {
		record, err := loadThread(bucket, id)
		if err != nil {
			return err
		}

		mutate(record.Info)
		record.Info.UpdatedAt = time.Now().UnixMilli()
		return saveThread(bucket, record)
	})
}

// DeleteThread removes the thread record and every attachment stored under
// it.
func (c *ConversationStore) DeleteThread(id string) error {
	return c.kv.update(func(bucket *bolt.Bucket) error {
		if _, err := loadThread(bucket, id); err != nil {
			return err
		}
		if err := bucket.Delete(threadKey(id)); err != nil {
			return err
		}

		prefix := attachmentKeyPrefix + id + ":"
		cursor := bucket.Cursor()
		var stale [][]byte
		for k, _ := cursor.Seek([]byte(prefix)); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == prefix; k, _ = cursor.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			stale = append(stale, key)
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMessage appends a node to the thread's tree. The message's ParentID,
// when set, must reference an existing message in the same thread. ID,
// CreatedAt and Seq are assigned here when unset.
func (c *ConversationStore) AddMessage(threadID string, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}

	added := *msg
	err := c.kv.update(func(bucket *bolt.Bucket) error {
		record, err := loadThread(bucket, threadID)
		if err != nil {
			return err
		}

		if added.ParentID != "" && findMessage(record, added.ParentID) == nil {
			return fmt.Errorf("parent %w: %s", ErrMessageNotFound, added.ParentID)
		}

		if added.ID == "" {
			added.ID = "msg-" + utils.GenerateUUID()
		}
		if added.CreatedAt == 0 {
			added.CreatedAt = time.Now().UnixMilli()
		}
		added.ThreadID = threadID
		added.Seq = record.NextSeq
		record.NextSeq += 1

		stored := added
		record.Messages = append(record.Messages, &stored)
		record.Info.UpdatedAt = time.Now().UnixMilli()
		return saveThread(bucket, record)
	})
	if err != nil {
		return nil, err
	}

	return &added, nil
}

func (c *ConversationStore) GetMessage(threadID, messageID string) (*models.Message, error) {
	record, err := c.loadRecord(threadID)
	if err != nil {
		return nil, err
	}

	msg := findMessage(record, messageID)
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	return msg, nil
}

func (c *ConversationStore) GetMessages(threadID string) ([]*models.Message, error) {
	record, err := c.loadRecord(threadID)
	if err != nil {
		return nil, err
	}

	return record.Messages, nil
}

// UpdateMessage mutates a message in place inside one transaction. Used by
// the workflow runner to persist streaming state.
func (c *ConversationStore) UpdateMessage(threadID, messageID string, mutate func(msg *models.Message) error) error {
	return c.kv.update(func(bucket *bolt.Bucket) error {
		record, err := loadThread(bucket, threadID)
		if err != nil {
			return err
		}

		msg := findMessage(record, messageID)
		if msg == nil {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}

		if err := mutate(msg); err != nil {
			return err
		}

		record.Info.UpdatedAt = time.Now().UnixMilli()
		return saveThread(bucket, record)
	})
}

// GetSiblings returns every message sharing the target's parent, in
// insertion order. The target itself is included.
func (c *ConversationStore) GetSiblings(threadID, messageID string) ([]*models.Message, error) {
	record, err := c.loadRecord(threadID)
	if err != nil {
		return nil, err
	}

	target := findMessage(record, messageID)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	return childrenOf(record, target.ParentID), nil
}

// ActivePath reconstructs the single linear conversation currently shown:
// starting from the roots, it follows the recorded branch selection at each
// level and falls back to the most recently created child when the
// selection is unset or stale.
func (c *ConversationStore) ActivePath(threadID string) ([]*models.Message, error) {
	record, err := c.loadRecord(threadID)
	if err != nil {
		return nil, err
	}

	return activePath(record), nil
}

// SetBranchSelection points the branch state for parentKey at childID. The
// child must actually exist under that parent.
func (c *ConversationStore) SetBranchSelection(threadID, parentKey, childID string) error {
	return c.kv.update(func(bucket *bolt.Bucket) error {
		record, err := loadThread(bucket, threadID)
		if err != nil {
			return err
		}

		child := findMessage(record, childID)
		if child == nil {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, childID)
		}
		if ParentKey(child.ParentID) != parentKey {
			return fmt.Errorf("message %s is not a child of %s", childID, parentKey)
		}

		record.BranchState[parentKey] = childID
		return saveThread(bucket, record)
	})
}

// DeleteMessageTree removes the message and all of its descendants.
// Branch-state entries keyed by removed messages are dropped; entries that
// pointed at a removed child are left to the latest-child fallback.
func (c *ConversationStore) DeleteMessageTree(threadID, messageID string) error {
	return c.kv.update(func(bucket *bolt.Bucket) error {
		record, err := loadThread(bucket, threadID)
		if err != nil {
			return err
		}

		if findMessage(record, messageID) == nil {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}

		doomed := map[string]bool{messageID: true}
		for {
			grew := false
			for _, msg := range record.Messages {
				if msg.ParentID != "" && doomed[msg.ParentID] && !doomed[msg.ID] {
					doomed[msg.ID] = true
					grew = true
				}
			}
			if !grew {
				break
			}
		}

		kept := make([]*models.Message, 0, len(record.Messages))
		for _, msg := range record.Messages {
			if !doomed[msg.ID] {
				kept = append(kept, msg)
			}
		}
		record.Messages = kept

		for id := range doomed {
			delete(record.BranchState, id)
		}

		record.Info.UpdatedAt = time.Now().UnixMilli()
		return saveThread(bucket, record)
	})
}

func (c *ConversationStore) SaveAttachment(att *models.Attachment) (*models.Attachment, error) {
	if att == nil {
		return nil, fmt.Errorf("attachment is required")
	}
	if att.ThreadID == "" {
		return nil, fmt.Errorf("attachment thread ID is required")
	}

	saved := *att
	if saved.ID == "" {
		saved.ID = "att-" + utils.GenerateUUID()
	}

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachment %s: %w", saved.ID, err)
	}

	if err := c.kv.put(attachmentKey(saved.ThreadID, saved.ID), data); err != nil {
		return nil, err
	}

	return &saved, nil
}

func (c *ConversationStore) DeleteAttachment(threadID, id string) error {
	return c.kv.delete(attachmentKey(threadID, id))
}

func (c *ConversationStore) GetAttachment(threadID, id string) (*models.Attachment, error) {
	value, err := c.kv.get(attachmentKey(threadID, id))
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)
	}

	var att models.Attachment
	if err := json.Unmarshal(value, &att); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attachment %s: %w", id, err)
	}

	return &att, nil
}

func (c *ConversationStore) loadRecord(threadID string) (*threadRecord, error) {
	value, err := c.kv.get(threadKey(threadID))
	if err != nil {
		return nil, err
	}
	return decodeThread(value, threadID)
}

func findMessage(record *threadRecord, id string) *models.Message {
	for _, msg := range record.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func childrenOf(record *threadRecord, parentID string) []*models.Message {
	children := make([]*models.Message, 0)
	for _, msg := range record.Messages {
		if msg.ParentID == parentID {
			children = append(children, msg)
		}
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].Seq < children[j].Seq
	})

	return children
}

func activePath(record *threadRecord) []*models.Message {
	path := make([]*models.Message, 0)
	parentID := ""
	for {
		children := childrenOf(record, parentID)
		if len(children) == 0 {
			break
		}

		selected := children[len(children)-1]
		if selectedID, ok := record.BranchState[ParentKey(parentID)]; ok {
			for _, child := range children {
				if child.ID == selectedID {
					selected = child
					break
				}
			}
		}

		path = append(path, selected)
		parentID = selected.ID
	}

	return path
}
