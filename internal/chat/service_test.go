package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/storage/storagetest"
)

type fixture struct {
	svc               *Service
	alice, bob, carol int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := storagetest.Open(t)
	return fixture{
		svc:   NewService(db),
		alice: storagetest.CreateUser(t, db, "alice"),
		bob:   storagetest.CreateUser(t, db, "bob"),
		carol: storagetest.CreateUser(t, db, "carol"),
	}
}

func TestCreateConversationReusesDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob}, "", false)
	require.NoError(t, err)
	require.Len(t, conv.Participants, 2)
	require.False(t, conv.IsGroup)

	again, err := f.svc.CreateConversation(ctx, f.bob, []int64{f.alice}, "", false)
	require.NoError(t, err)
	require.Equal(t, conv.ID, again.ID)

	group, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob, f.carol, f.bob}, "team", true)
	require.NoError(t, err)
	require.NotEqual(t, conv.ID, group.ID)
	require.Len(t, group.Participants, 3)
	require.Equal(t, "team", group.Name)
}

func TestCreateConversationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.alice}, "", false)
	require.True(t, errors.Is(err, apperr.ErrInvalid))

	_, err = f.svc.CreateConversation(ctx, f.alice, []int64{f.bob, f.carol}, "", false)
	require.True(t, errors.Is(err, apperr.ErrInvalid))

	_, err = f.svc.CreateConversation(ctx, f.alice, []int64{9999}, "", false)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSendMessageAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob}, "", false)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		at := base.Add(time.Duration(i) * time.Second)
		f.svc.now = func() time.Time { return at }
		msg, err := f.svc.SendMessage(ctx, f.alice, conv.ID, "  "+text+" ", "")
		require.NoError(t, err)
		require.Equal(t, text, msg.Content)
		require.Equal(t, models.MessageText, msg.Type)
		require.Equal(t, "alice", msg.SenderUsername)
	}

	msgs, err := f.svc.GetMessages(ctx, f.bob, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "three", msgs[2].Content)

	older, err := f.svc.GetMessages(ctx, f.bob, conv.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, "two", older[0].Content)

	got, err := f.svc.GetConversation(ctx, f.bob, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	require.Equal(t, "three", got.LastMessage.Content)
	require.Equal(t, 3, got.UnreadCount)
	require.NotNil(t, got.LastMessageAt)

	mine, err := f.svc.GetConversation(ctx, f.alice, conv.ID)
	require.NoError(t, err)
	require.Zero(t, mine.UnreadCount)
}

func TestSendMessageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob}, "", false)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, f.alice, conv.ID, "   ", "")
	require.True(t, errors.Is(err, apperr.ErrInvalid))

	_, err = f.svc.SendMessage(ctx, f.alice, conv.ID, "hi", "sticker")
	require.True(t, errors.Is(err, apperr.ErrInvalid))

	_, err = f.svc.SendMessage(ctx, f.carol, conv.ID, "hi", "")
	require.True(t, errors.Is(err, apperr.ErrForbidden))
	require.Equal(t, "you are not a participant of this conversation", apperr.Public(err))

	_, err = f.svc.SendMessage(ctx, f.alice, 4242, "hi", "")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.GetMessages(ctx, f.carol, conv.ID, 0, 10)
	require.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestMarkMessageAsReadClearsUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob}, "", false)
	require.NoError(t, err)

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return sent }
	msg, err := f.svc.SendMessage(ctx, f.alice, conv.ID, "read me", "")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return sent.Add(time.Minute) }
	read, err := f.svc.MarkMessageAsRead(ctx, f.bob, msg.ID)
	require.NoError(t, err)
	require.Equal(t, f.alice, read.SenderID)

	got, err := f.svc.GetConversation(ctx, f.bob, conv.ID)
	require.NoError(t, err)
	require.Zero(t, got.UnreadCount)

	_, err = f.svc.MarkMessageAsRead(ctx, f.carol, msg.ID)
	require.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.MarkMessageAsRead(ctx, f.bob, 9999)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	first, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.bob}, "", false)
	require.NoError(t, err)
	second, err := f.svc.CreateConversation(ctx, f.alice, []int64{f.carol}, "", false)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return base.Add(time.Hour) }
	_, err = f.svc.SendMessage(ctx, f.bob, first.ID, "bump", "")
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, second.ID, list[1].ID)

	ids, err := f.svc.Participants(ctx, first.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{f.alice, f.bob}, ids)

	none, err := NewService(storagetest.Open(t)).ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, none)
}
