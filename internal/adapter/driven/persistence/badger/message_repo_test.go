package badger

import (
	"context"
	"testing"
	"time"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storeConversation(t *testing.T, repo *MessageRepository, n int) []domain.Message {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var stored []domain.Message
	for i := 0; i < n; i++ {
		from, to := domain.UserID("alice"), domain.UserID("bob")
		if i%2 == 1 {
			from, to = to, from
		}
		msg, err := domain.NewMessage(domain.Draft{SenderID: from, ReceiverID: to, Text: "msg"}, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, repo.Save(context.Background(), msg))
		stored = append(stored, msg)
	}
	return stored
}

func Test_Save_And_Get(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	msg, err := domain.NewMessage(domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "hello", FileURL: "/x.png"}, time.Now())
	req.NoError(err)

	req.NoError(repo.Save(ctx, msg))

	got, err := repo.Get(ctx, msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, got.ID)
	req.Equal(msg.Text, got.Text)
	req.Equal(msg.File, got.File)
	req.True(msg.CreatedAt.Equal(got.CreatedAt))

	// Saving the same id twice is rejected
	req.ErrorIs(repo.Save(ctx, msg), domain.ErrValidation)
}

func Test_Get_Unknown_Message(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	_, err := repo.Get(context.Background(), domain.NewMessageID())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func Test_Update(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	msg := storeConversation(t, repo, 1)[0]

	_, err := msg.ToggleReaction("bob", "🔥", time.Now())
	req.NoError(err)
	req.NoError(repo.Update(ctx, msg))

	got, err := repo.Get(ctx, msg.ID)
	req.NoError(err)
	req.Len(got.Reactions, 1)

	unknown := msg
	unknown.ID = domain.NewMessageID()
	req.ErrorIs(repo.Update(ctx, unknown), domain.ErrNotFound)
}

func Test_History_Newest_First_With_Limit(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	stored := storeConversation(t, repo, 5)

	// Given another conversation exists
	other, err := domain.NewMessage(domain.Draft{SenderID: "alice", ReceiverID: "carol", Text: "x"}, time.Now())
	req.NoError(err)
	req.NoError(repo.Save(context.Background(), other))

	got, err := repo.History(context.Background(), domain.DeriveConversationID("bob", "alice"), 3)

	req.NoError(err)
	req.Len(got, 3)
	req.Equal(stored[4].ID, got[0].ID)
	req.Equal(stored[3].ID, got[1].ID)
	req.Equal(stored[2].ID, got[2].ID)
}

func Test_History_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))

	got, err := repo.History(context.Background(), "nobody_nothing", 50)

	req.NoError(err)
	req.Empty(got)
}

func Test_Unread(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	stored := storeConversation(t, repo, 4)
	conversation := stored[0].ConversationID

	// Only messages sent by alice are waiting for bob, oldest first
	unread, err := repo.Unread(ctx, conversation, "bob")
	req.NoError(err)
	req.Equal([]domain.MessageID{stored[0].ID, stored[2].ID}, unread)

	read := stored[0]
	read.IsRead = true
	req.NoError(repo.Update(ctx, read))

	unread, err = repo.Unread(ctx, conversation, "bob")
	req.NoError(err)
	req.Equal([]domain.MessageID{stored[2].ID}, unread)
}

func Test_Conversations_Sharing_A_Prefix_Stay_Apart(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	// "a" to "b:c" lives in conversation "a_b:c"
	secret, err := domain.NewMessage(domain.Draft{SenderID: "a", ReceiverID: "b:c", Text: "secret"}, time.Now())
	req.NoError(err)
	req.NoError(repo.Save(ctx, secret))

	own, err := domain.NewMessage(domain.Draft{SenderID: "b", ReceiverID: "a", Text: "mine"}, time.Now())
	req.NoError(err)
	req.NoError(repo.Save(ctx, own))

	history, err := repo.History(ctx, domain.DeriveConversationID("a", "b"), 50)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(own.ID, history[0].ID)

	unread, err := repo.Unread(ctx, domain.DeriveConversationID("a", "b"), "b")
	req.NoError(err)
	req.Empty(unread)

	history, err = repo.History(ctx, secret.ConversationID, 50)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("secret", history[0].Text)
}

func Test_Profiles(t *testing.T) {
	req := require.New(t)
	repo := NewProfileRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "alice")
	req.ErrorIs(err, domain.ErrNotFound)

	profile := domain.Profile{UserID: "alice", DisplayName: "Alice", AvatarURL: "/a.png"}
	req.NoError(repo.SaveProfile(ctx, profile))
	req.NoError(repo.SaveProfile(ctx, domain.Profile{UserID: "alice", DisplayName: "Alice L."}))

	got, err := repo.GetProfile(ctx, "alice")
	req.NoError(err)
	req.Equal("Alice L.", got.DisplayName)
}

func Test_Open_In_Memory(t *testing.T) {
	req := require.New(t)
	db, err := Open("")
	req.NoError(err)
	defer db.Close()
	req.True(db.Opts().InMemory)
}
