package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/models"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()

	kv, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = kv.Close()
	})

	return NewConversationStore(kv)
}

func addMessage(t *testing.T, cs *ConversationStore, threadID, parentID string, role models.MessageRole, content string) *models.Message {
	t.Helper()

	msg, err := cs.AddMessage(threadID, &models.Message{
		Role:     role,
		ParentID: parentID,
		Content:  content,
	})
	require.NoError(t, err)
	return msg
}

func pathIDs(path []*models.Message) []string {
	ids := make([]string, 0, len(path))
	for _, msg := range path {
		ids = append(ids, msg.ID)
	}
	return ids
}

func TestCreateAndListThreads(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)

	first, err := cs.CreateThread("first", "deepseek-chat")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := cs.CreateThread("second", "deepseek-chat")
	require.NoError(t, err)

	infos, err := cs.ListThreads()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Newest first.
	assert.Equal(t, second.ID, infos[0].ID)
	assert.Equal(t, first.ID, infos[1].ID)

	info, err := cs.GetThreadInfo(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", info.Title)
	assert.Equal(t, "deepseek-chat", info.Model)
}

func TestGetThreadInfoNotFound(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	_, err := cs.GetThreadInfo("thread-missing")
	require.ErrorIs(t, err, ErrThreadNotFound)
}

func TestUpdateThreadInfo(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	err = cs.UpdateThreadInfo(info.ID, func(info *models.ThreadInfo) {
		info.Title = "renamed"
	})
	require.NoError(t, err)

	updated, err := cs.GetThreadInfo(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.GreaterOrEqual(t, updated.UpdatedAt, info.UpdatedAt)
}

func TestAddMessageValidatesParent(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	root := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "hello")
	assert.NotEmpty(t, root.ID)
	assert.Equal(t, info.ID, root.ThreadID)

	child := addMessage(t, cs, info.ID, root.ID, models.MessageRoleAssistant, "hi")
	assert.Greater(t, child.Seq, root.Seq)

	_, err = cs.AddMessage(info.ID, &models.Message{
		Role:     models.MessageRoleUser,
		ParentID: "msg-missing",
		Content:  "orphan",
	})
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUpdateMessage(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)
	msg := addMessage(t, cs, info.ID, "", models.MessageRoleAssistant, "")

	err = cs.UpdateMessage(info.ID, msg.ID, func(msg *models.Message) error {
		msg.Content = "streamed text"
		msg.Reasoning = "step by step"
		return nil
	})
	require.NoError(t, err)

	stored, err := cs.GetMessage(info.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "streamed text", stored.Content)
	assert.Equal(t, "step by step", stored.Reasoning)

	err = cs.UpdateMessage(info.ID, "msg-missing", func(msg *models.Message) error {
		return nil
	})
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGetSiblingsInInsertionOrder(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	user := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	a1 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer one")
	a2 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer two")
	a3 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer three")

	siblings, err := cs.GetSiblings(info.ID, a2.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 3)
	assert.Equal(t, []string{a1.ID, a2.ID, a3.ID}, pathIDs(siblings))
}

func TestActivePathDefaultsToLatestChild(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	user := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer one")
	a2 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer two")
	tail := addMessage(t, cs, info.ID, a2.ID, models.MessageRoleUser, "follow up")

	path, err := cs.ActivePath(info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID, a2.ID, tail.ID}, pathIDs(path))
}

func TestActivePathFollowsBranchSelection(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	user := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	a1 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer one")
	addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer two")

	require.NoError(t, cs.SetBranchSelection(info.ID, user.ID, a1.ID))

	path, err := cs.ActivePath(info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID, a1.ID}, pathIDs(path))
}

func TestActivePathToleratesStaleSelection(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	user := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	a1 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer one")
	a2 := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer two")

	require.NoError(t, cs.SetBranchSelection(info.ID, user.ID, a1.ID))
	require.NoError(t, cs.DeleteMessageTree(info.ID, a1.ID))

	// The selection under user still points at the deleted child; the walk
	// falls back to the latest surviving one.
	path, err := cs.ActivePath(info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID, a2.ID}, pathIDs(path))
}

func TestSetBranchSelectionValidatesChild(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	user := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	answer := addMessage(t, cs, info.ID, user.ID, models.MessageRoleAssistant, "answer")
	other := addMessage(t, cs, info.ID, answer.ID, models.MessageRoleUser, "deeper")

	require.ErrorIs(t, cs.SetBranchSelection(info.ID, user.ID, "msg-missing"), ErrMessageNotFound)
	require.Error(t, cs.SetBranchSelection(info.ID, user.ID, other.ID))
	require.NoError(t, cs.SetBranchSelection(info.ID, RootParentKey, user.ID))
}

func TestDeleteMessageTreeRemovesDescendants(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	u1 := addMessage(t, cs, info.ID, "", models.MessageRoleUser, "question")
	a1 := addMessage(t, cs, info.ID, u1.ID, models.MessageRoleAssistant, "answer")
	u2 := addMessage(t, cs, info.ID, a1.ID, models.MessageRoleUser, "follow up")
	a2 := addMessage(t, cs, info.ID, u2.ID, models.MessageRoleAssistant, "more")
	require.NoError(t, cs.SetBranchSelection(info.ID, u2.ID, a2.ID))

	require.NoError(t, cs.DeleteMessageTree(info.ID, a1.ID))

	remaining, err := cs.GetMessages(info.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, u1.ID, remaining[0].ID)

	_, err = cs.GetMessage(info.ID, u2.ID)
	require.ErrorIs(t, err, ErrMessageNotFound)

	require.ErrorIs(t, cs.DeleteMessageTree(info.ID, a1.ID), ErrMessageNotFound)
}

func TestAttachmentRoundTrip(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	saved, err := cs.SaveAttachment(&models.Attachment{
		ThreadID: info.ID,
		Kind:     models.AttachmentKindText,
		Name:     "notes.txt",
		MimeType: "text/plain",
		Data:     []byte("some notes"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	loaded, err := cs.GetAttachment(info.ID, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", loaded.Name)
	assert.Equal(t, []byte("some notes"), loaded.Data)

	_, err = cs.GetAttachment(info.ID, "att-missing")
	require.ErrorIs(t, err, ErrAttachmentNotFound)

	require.NoError(t, cs.DeleteAttachment(info.ID, saved.ID))
	_, err = cs.GetAttachment(info.ID, saved.ID)
	require.ErrorIs(t, err, ErrAttachmentNotFound)
}

func TestDeleteThreadCascadesAttachments(t *testing.T) {
	t.Parallel()

	cs := newTestStore(t)
	info, err := cs.CreateThread("", "deepseek-chat")
	require.NoError(t, err)

	saved, err := cs.SaveAttachment(&models.Attachment{
		ThreadID: info.ID,
		Kind:     models.AttachmentKindFile,
		Name:     "report.pdf",
		MimeType: "application/pdf",
		Data:     []byte{0x25, 0x50, 0x44, 0x46},
	})
	require.NoError(t, err)

	require.NoError(t, cs.DeleteThread(info.ID))

	_, err = cs.GetThreadInfo(info.ID)
	require.ErrorIs(t, err, ErrThreadNotFound)
	_, err = cs.GetAttachment(info.ID, saved.ID)
	require.ErrorIs(t, err, ErrAttachmentNotFound)

	require.ErrorIs(t, cs.DeleteThread(info.ID), ErrThreadNotFound)
}
