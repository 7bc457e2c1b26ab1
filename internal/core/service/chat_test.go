package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/parley/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/core/port/mocks"
	"github.com/Wyydra/parley/internal/core/service"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	chat     *service.ChatService
	repo     *memory.MessageRepository
	profiles *memory.ProfileRepository
	presence *mocks.MockPresence
	gateway  *mocks.MockGateway
	clock    *clock.Mock
}

func newChat(t *testing.T, opts ...service.ChatOption) chatFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := chatFixture{
		repo:     memory.NewMessageRepository(),
		profiles: memory.NewProfileRepository(),
		presence: mocks.NewMockPresence(ctrl),
		gateway:  mocks.NewMockGateway(ctrl),
		clock:    clock.NewMock(),
	}
	f.chat = service.NewChatService(f.repo, f.profiles, f.presence, f.gateway, f.clock, opts...)
	return f
}

// online puts each user on connection "c-<user>" with a live session.
func (f chatFixture) online(users ...domain.UserID) {
	for _, u := range users {
		conn := domain.ConnectionID("c-" + u)
		f.presence.EXPECT().Lookup(u).Return(conn, true).AnyTimes()
		f.presence.EXPECT().Session(conn).Return(domain.Session{ConnectionID: conn, UserID: u}, true).AnyTimes()
	}
}

func (f chatFixture) offline(users ...domain.UserID) {
	for _, u := range users {
		f.presence.EXPECT().Lookup(u).Return(domain.ConnectionID(""), false).AnyTimes()
	}
}

func (f chatFixture) seed(t *testing.T, from, to domain.UserID, text string) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(domain.Draft{SenderID: from, ReceiverID: to, Text: text}, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(context.Background(), msg))
	f.clock.Add(time.Second)
	return msg
}

func Test_Send_Delivers_To_Sender_And_Online_Recipient(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice", "bob")

	var sent, received domain.Message
	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-alice"), gomock.Any()).Do(
		func(_ context.Context, _ domain.ConnectionID, evt domain.Event) {
			req.Equal(domain.EventMessageSent, evt.Name)
			sent = evt.Payload.(domain.Message)
		})
	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-bob"), gomock.Any()).Do(
		func(_ context.Context, _ domain.ConnectionID, evt domain.Event) {
			req.Equal(domain.EventMessageReceive, evt.Name)
			received = evt.Payload.(domain.Message)
		})

	msg, err := f.chat.Send(context.Background(), "c-alice", domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "hello"})

	req.NoError(err)
	req.Equal(msg, sent)
	req.Equal(msg, received)
	req.Equal(domain.ConversationID("alice_bob"), msg.ConversationID)
	req.Equal(f.clock.Now().UTC(), msg.CreatedAt)

	stored, err := f.repo.Get(context.Background(), msg.ID)
	req.NoError(err)
	req.Equal("hello", stored.Text)
}

func Test_Send_To_Offline_Recipient_Still_Persists(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice")
	f.offline("bob")

	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-alice"), gomock.Any()).Times(1)

	msg, err := f.chat.Send(context.Background(), "c-alice", domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "you there?"})
	req.NoError(err)

	history, err := f.chat.History(context.Background(), "bob", "alice", 0)
	req.NoError(err)
	req.Len(history.Messages, 1)
	req.Equal(msg.ID, history.Messages[0].ID)
}

func Test_Send_Rejects_Invalid_Drafts(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice")

	// No text and no file
	_, err := f.chat.Send(context.Background(), "c-alice", domain.Draft{SenderID: "alice", ReceiverID: "bob"})
	req.ErrorIs(err, domain.ErrValidation)

	// Session belongs to alice, draft claims mallory
	_, err = f.chat.Send(context.Background(), "c-alice", domain.Draft{SenderID: "mallory", ReceiverID: "bob", Text: "hi"})
	req.ErrorIs(err, domain.ErrValidation)

	history, err := f.chat.History(context.Background(), "alice", "bob", 10)
	req.NoError(err)
	req.Empty(history.Messages)
}

func Test_History_Is_Chronological_And_Limited(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	ctx := context.Background()
	req.NoError(f.profiles.SaveProfile(ctx, domain.Profile{UserID: "alice", DisplayName: "Alice", AvatarURL: "/alice.png"}))

	var ids []domain.MessageID
	for i := 0; i < 5; i++ {
		from, to := domain.UserID("alice"), domain.UserID("bob")
		if i%2 == 1 {
			from, to = to, from
		}
		ids = append(ids, f.seed(t, from, to, "m").ID)
	}

	history, err := f.chat.History(ctx, "bob", "alice", 3)

	req.NoError(err)
	req.Equal(domain.ConversationID("alice_bob"), history.ConversationID)
	req.Len(history.Messages, 3)
	req.Equal([]domain.MessageID{ids[2], ids[3], ids[4]}, []domain.MessageID{
		history.Messages[0].ID, history.Messages[1].ID, history.Messages[2].ID,
	})
	// Alice has a stored profile, bob does not
	req.Equal("Alice", history.Messages[0].SenderName)
	req.Equal("/alice.png", history.Messages[0].SenderAvatar)
	req.Empty(history.Messages[1].SenderName)
}

func Test_History_Limit_Defaults_And_Cap(t *testing.T) {
	req := require.New(t)
	f := newChat(t, service.WithHistoryLimits(2, 3))
	for i := 0; i < 5; i++ {
		f.seed(t, "alice", "bob", "m")
	}

	byDefault, err := f.chat.History(context.Background(), "alice", "bob", 0)
	req.NoError(err)
	req.Len(byDefault.Messages, 2)

	capped, err := f.chat.History(context.Background(), "alice", "bob", 1000)
	req.NoError(err)
	req.Len(capped.Messages, 3)
}

func Test_ToggleReaction_Notifies_Both_Participants(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice", "bob")
	msg := f.seed(t, "alice", "bob", "nice")

	var events []domain.Event
	f.gateway.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Do(
		func(_ context.Context, _ domain.ConnectionID, evt domain.Event) {
			events = append(events, evt)
		}).Times(2)

	result, err := f.chat.ToggleReaction(context.Background(), msg.ID, "bob", "❤️")

	req.NoError(err)
	req.Equal(domain.ReactionAdded, result.Action)
	req.Len(result.Reactions, 1)
	req.Len(events, 2)
	for _, evt := range events {
		req.Equal(domain.EventReactionUpdated, evt.Name)
		req.Equal(result, evt.Payload)
	}
}

func Test_ToggleReaction_Concurrent_Identical_Toggles_Cancel_Out(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.offline("alice", "bob")
	msg := f.seed(t, "alice", "bob", "race")

	var wg sync.WaitGroup
	actions := make(chan domain.ReactionAction, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.chat.ToggleReaction(context.Background(), msg.ID, "bob", "👍")
			if err == nil {
				actions <- result.Action
			}
		}()
	}
	wg.Wait()
	close(actions)

	var got []domain.ReactionAction
	for a := range actions {
		got = append(got, a)
	}
	req.ElementsMatch([]domain.ReactionAction{domain.ReactionAdded, domain.ReactionRemoved}, got)
	stored, err := f.repo.Get(context.Background(), msg.ID)
	req.NoError(err)
	req.Empty(stored.Reactions)
}

func Test_ToggleReaction_Unknown_Message(t *testing.T) {
	f := newChat(t)
	_, err := f.chat.ToggleReaction(context.Background(), domain.NewMessageID(), "bob", "👍")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func Test_Edit(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice")
	f.offline("bob")
	msg := f.seed(t, "alice", "bob", "teh")

	// Bob cannot edit alice's message
	_, err := f.chat.Edit(context.Background(), msg.ID, "bob", "hijack")
	req.ErrorIs(err, domain.ErrPermission)

	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-alice"), gomock.Any()).Do(
		func(_ context.Context, _ domain.ConnectionID, evt domain.Event) {
			req.Equal(domain.EventEditApplied, evt.Name)
		})

	edited, err := f.chat.Edit(context.Background(), msg.ID, "alice", "the")

	req.NoError(err)
	req.Equal("the", edited.Text)
	req.True(edited.IsEdited)
	stored, err := f.repo.Get(context.Background(), msg.ID)
	req.NoError(err)
	req.Equal("the", stored.Text)
}

func Test_Delete_Is_A_Tombstone(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.offline("alice", "bob")
	msg := f.seed(t, "alice", "bob", "oops")

	_, err := f.chat.Delete(context.Background(), msg.ID, "bob")
	req.ErrorIs(err, domain.ErrPermission)

	deleted, err := f.chat.Delete(context.Background(), msg.ID, "alice")
	req.NoError(err)
	req.True(deleted.IsDeleted)
	req.Equal(domain.DeletedPlaceholder, deleted.Text)

	// Still listed in history, and a second delete changes nothing
	f.clock.Add(time.Hour)
	again, err := f.chat.Delete(context.Background(), msg.ID, "alice")
	req.NoError(err)
	req.Equal(deleted.DeletedAt, again.DeletedAt)

	history, err := f.chat.History(context.Background(), "alice", "bob", 0)
	req.NoError(err)
	req.Len(history.Messages, 1)
	req.True(history.Messages[0].IsDeleted)
}

func Test_MarkRead_Sends_Receipt_To_Peer(t *testing.T) {
	req := require.New(t)
	f := newChat(t)
	f.online("alice")
	first := f.seed(t, "alice", "bob", "1")
	f.seed(t, "bob", "alice", "2")
	third := f.seed(t, "alice", "bob", "3")

	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-alice"), domain.Event{
		Name: domain.EventReadReceipt,
		Payload: domain.ReadReceiptPayload{
			ConversationID: "alice_bob",
			ReaderID:       "bob",
			MessageIDs:     []domain.MessageID{first.ID, third.ID},
		},
	})

	n, err := f.chat.MarkRead(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Equal(2, n)

	// Nothing left to mark, no second receipt
	n, err = f.chat.MarkRead(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Zero(n)
}

// stallingRepo starts hook on the first Get and holds that Get for a moment,
// widening the window between a read and the following write.
type stallingRepo struct {
	*memory.MessageRepository
	once sync.Once
	hook func()
}

func (r *stallingRepo) Get(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	msg, err := r.MessageRepository.Get(ctx, id)
	r.once.Do(func() {
		go r.hook()
		time.Sleep(50 * time.Millisecond)
	})
	return msg, err
}

func Test_MarkRead_Does_Not_Lose_Concurrent_Reaction(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	presence := mocks.NewMockPresence(ctrl)
	presence.EXPECT().Lookup(gomock.Any()).Return(domain.ConnectionID(""), false).AnyTimes()

	clk := clock.NewMock()
	repo := &stallingRepo{MessageRepository: memory.NewMessageRepository()}
	chat := service.NewChatService(repo, memory.NewProfileRepository(), presence, mocks.NewMockGateway(ctrl), clk)

	msg, err := domain.NewMessage(domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "hi"}, clk.Now())
	req.NoError(err)
	req.NoError(repo.Save(context.Background(), msg))

	var (
		wg      sync.WaitGroup
		marked  int
		readErr error
	)
	wg.Add(1)
	repo.hook = func() {
		defer wg.Done()
		marked, readErr = chat.MarkRead(context.Background(), "bob", "alice")
	}

	// The reaction's read happens first, then bob reads the thread mid-toggle
	_, err = chat.ToggleReaction(context.Background(), msg.ID, "bob", "👍")
	req.NoError(err)
	wg.Wait()
	req.NoError(readErr)
	req.Equal(1, marked)

	stored, err := repo.MessageRepository.Get(context.Background(), msg.ID)
	req.NoError(err)
	req.True(stored.IsRead)
	req.Len(stored.Reactions, 1)
}

func Test_Typing_Only_Reaches_Online_Peer(t *testing.T) {
	f := newChat(t)
	f.online("bob")
	f.offline("carol")

	f.gateway.EXPECT().Send(gomock.Any(), domain.ConnectionID("c-bob"), domain.Event{
		Name:    domain.EventTyping,
		Payload: domain.TypingPayload{FromUserID: "alice", Typing: true},
	})

	f.chat.Typing(context.Background(), "alice", "bob", true)
	f.chat.Typing(context.Background(), "alice", "carol", true)
}

func Test_Send_Storage_Failure_Emits_Nothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMessageRepository(ctrl)
	profiles := mocks.NewMockProfileRepository(ctrl)
	presence := mocks.NewMockPresence(ctrl)
	gateway := mocks.NewMockGateway(ctrl)
	chat := service.NewChatService(repo, profiles, presence, gateway, clock.NewMock())

	presence.EXPECT().Session(domain.ConnectionID("c-alice")).Return(domain.Session{UserID: "alice"}, true)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := chat.Send(context.Background(), "c-alice", domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "hi"})

	req.EqualError(err, "disk full")
}

func Test_Edit_Update_Failure_Is_Not_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMessageRepository(ctrl)
	gateway := mocks.NewMockGateway(ctrl)
	chat := service.NewChatService(repo, mocks.NewMockProfileRepository(ctrl), mocks.NewMockPresence(ctrl), gateway, clock.NewMock())
	msg, err := domain.NewMessage(domain.Draft{SenderID: "alice", ReceiverID: "bob", Text: "v1"}, time.Now())
	req.NoError(err)

	gomock.InOrder(
		repo.EXPECT().Get(gomock.Any(), msg.ID).Return(msg, nil),
		repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(errors.New("conflict")),
	)

	_, err = chat.Edit(context.Background(), msg.ID, "alice", "v2")

	req.Error(err)
}
