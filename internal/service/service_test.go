package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imaad666/W-Chhatt/internal/cache"
	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/idgen"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/relay"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/pkg/jwt"
)

type testEnv struct {
	users    *repository.GormUserRepository
	rooms    *repository.GormRoomRepository
	messages *repository.GormMessageRepository
	tokens   *jwt.Manager
	accounts AccountService
	roomSvc  RoomService
	tracker  *presence.Tracker
	relay    *relay.Relay
	chat     ChatService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Models()...))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	tokens, err := jwt.NewManager(jwt.Config{Issuer: "test"})
	require.NoError(t, err)

	env := &testEnv{
		users:    repository.NewGormUserRepository(db),
		rooms:    repository.NewGormRoomRepository(db),
		messages: repository.NewGormMessageRepository(db),
		tokens:   tokens,
		tracker:  presence.NewTracker(),
	}
	env.accounts = NewAccountService(env.users, tokens)
	env.accounts.(*accountServiceImpl).bcryptCost = bcrypt.MinCost
	env.roomSvc = NewRoomService(env.rooms, env.users, env.messages, cache.NewNoopRoomCache(), time.Minute)
	env.relay = relay.NewRelay(env.messages, env.users, env.rooms, env.tracker, idgen.NewULIDGenerator(), config.ChatConfig{})
	env.chat = NewChatService(env.tracker, env.roomSvc, env.relay, tokens)
	return env
}

func (e *testEnv) register(t *testing.T, username string) *domain.AuthResponse {
	t.Helper()
	resp, err := e.accounts.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return resp
}

func identityOf(resp *domain.AuthResponse) domain.Identity {
	return domain.Identity{UserID: resp.User.ID, Username: resp.User.Username}
}

func intPtr(v int) *int { return &v }

func TestAccountService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.register(t, "alice")
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "alice", resp.User.Username)

	claims, err := env.tokens.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	t.Run("duplicate username", func(t *testing.T) {
		_, err := env.accounts.Register(ctx, &domain.RegisterRequest{Username: "alice", Email: "new@example.com", Password: "secret123"})
		assert.ErrorIs(t, err, ErrUsernameExists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.accounts.Register(ctx, &domain.RegisterRequest{Username: "alice2", Email: "ALICE@example.com", Password: "secret123"})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("login", func(t *testing.T) {
		got, err := env.accounts.Login(ctx, &domain.LoginRequest{Username: "alice", Password: "secret123"})
		require.NoError(t, err)
		require.NotNil(t, got.User.LastLogin)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.accounts.Login(ctx, &domain.LoginRequest{Username: "alice", Password: "nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.accounts.Login(ctx, &domain.LoginRequest{Username: "ghost", Password: "secret123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("me", func(t *testing.T) {
		me, err := env.accounts.Me(ctx, resp.User.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", me.Email)

		_, err = env.accounts.Me(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("search", func(t *testing.T) {
		env.register(t, "bob")
		found, err := env.accounts.SearchUsers(ctx, "AL")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "alice", found[0].Username)
	})
}

func TestAccountService_RefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "alice")

	refreshed, err := env.accounts.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, refreshed.User.ID)

	_, err = env.accounts.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.AccessToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.accounts.Logout(ctx, resp.User.ID))
	_, err = env.tokens.ValidateAccessToken(resp.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrRevokedToken)
	_, err = env.accounts.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRoomService_CreateAndMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := identityOf(env.register(t, "alice"))
	bob := identityOf(env.register(t, "bob"))
	carol := identityOf(env.register(t, "carol"))

	room, err := env.roomSvc.CreateRoom(ctx, alice, &domain.CreateRoomRequest{Name: "General", Description: "chit chat", MaxParticipants: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, room.Participants)
	assert.Equal(t, 1, room.ParticipantCount)
	assert.Equal(t, "alice", room.CreatorUsername)

	_, err = env.roomSvc.CreateRoom(ctx, bob, &domain.CreateRoomRequest{Name: "General"})
	assert.ErrorIs(t, err, ErrRoomNameTaken)

	_, err = env.roomSvc.CreateRoom(ctx, domain.Identity{UserID: "ghost"}, &domain.CreateRoomRequest{Name: "Ghosts"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	t.Run("join is idempotent", func(t *testing.T) {
		require.NoError(t, env.roomSvc.Join(ctx, room.ID, bob.UserID))
		require.NoError(t, env.roomSvc.Join(ctx, room.ID, bob.UserID))
		participants, err := env.roomSvc.Participants(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, participants)
	})

	t.Run("full room", func(t *testing.T) {
		assert.ErrorIs(t, env.roomSvc.Join(ctx, room.ID, carol.UserID), ErrRoomFull)
	})

	t.Run("unknown room and user", func(t *testing.T) {
		assert.ErrorIs(t, env.roomSvc.Join(ctx, "missing", bob.UserID), ErrRoomNotFound)
		assert.ErrorIs(t, env.roomSvc.Join(ctx, room.ID, "ghost"), ErrUserNotFound)
		assert.ErrorIs(t, env.roomSvc.Leave(ctx, "missing", bob.UserID), ErrRoomNotFound)
		_, err := env.roomSvc.Participants(ctx, "missing")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("leave", func(t *testing.T) {
		require.NoError(t, env.roomSvc.Leave(ctx, room.ID, carol.UserID))
		require.NoError(t, env.roomSvc.Leave(ctx, room.ID, alice.UserID))
		require.NoError(t, env.roomSvc.Leave(ctx, room.ID, bob.UserID))

		got, err := env.roomSvc.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, got.Participants)
	})
}

func TestRoomService_Listing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := identityOf(env.register(t, "alice"))
	bob := identityOf(env.register(t, "bob"))

	public, err := env.roomSvc.CreateRoom(ctx, alice, &domain.CreateRoomRequest{Name: "Lobby", Description: "everyone"})
	require.NoError(t, err)
	private, err := env.roomSvc.CreateRoom(ctx, bob, &domain.CreateRoomRequest{Name: "Backroom", Description: "lobby overflow", IsPrivate: true})
	require.NoError(t, err)

	_, err = env.relay.SendMessage(ctx, "hi", public.ID, alice)
	require.NoError(t, err)

	listed, err := env.roomSvc.ListPublicRooms(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, public.ID, listed[0].ID)
	assert.Equal(t, int64(1), listed[0].MessageCount)

	// Private rooms are unlisted but still joinable and searchable.
	require.NoError(t, env.roomSvc.Join(ctx, private.ID, alice.UserID))
	mine, err := env.roomSvc.ListRoomsForUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	found, err := env.roomSvc.SearchRooms(ctx, "LOBBY")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

// chatConn records what the server sends to one socket.
type chatConn struct {
	id string
	mu sync.Mutex
	in []map[string]interface{}
}

func (c *chatConn) ID() string { return c.id }

func (c *chatConn) Send(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, m)
	return nil
}

func (c *chatConn) drain() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.in
	c.in = nil
	return out
}

func types(events []map[string]interface{}) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e["type"].(string)
	}
	return out
}

func contentOf(e map[string]interface{}) string {
	return e["message"].(map[string]interface{})["content"].(string)
}

func TestChatService_AliceAndBob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceAuth := env.register(t, "alice")
	bobAuth := env.register(t, "bob")
	room, err := env.roomSvc.CreateRoom(ctx, identityOf(aliceAuth), &domain.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	aliceConn := &chatConn{id: "a"}
	bobConn := &chatConn{id: "b"}
	alice := env.chat.HandleConnect(aliceConn)
	bob := env.chat.HandleConnect(bobConn)

	// Unauthenticated sessions cannot join.
	require.NoError(t, env.chat.HandleAddUser(ctx, alice, "alice", room.ID))
	events := aliceConn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrCodeUnauthorized, events[0]["code"])

	require.NoError(t, env.chat.HandleAuth(ctx, alice, aliceAuth.AccessToken))
	require.NoError(t, env.chat.HandleAuth(ctx, bob, bobAuth.AccessToken))
	assert.Equal(t, true, aliceConn.drain()[0]["success"])
	bobConn.drain()

	require.NoError(t, env.chat.HandleAddUser(ctx, alice, "alice", room.ID))
	events = aliceConn.drain()
	assert.Equal(t, []string{domain.MsgTypeRoomJoined, domain.MsgTypeSystemMessage}, types(events))
	assert.Equal(t, "alice joined the chat!", contentOf(events[1]))

	require.NoError(t, env.chat.HandleAddUser(ctx, bob, "", room.ID))
	events = aliceConn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "bob joined the chat!", contentOf(events[0]))
	events = bobConn.drain()
	assert.Equal(t, []string{domain.MsgTypeRoomJoined, domain.MsgTypeSystemMessage}, types(events))
	assert.Equal(t, []interface{}{"alice", "bob"}, events[0]["participants"])

	require.NoError(t, env.chat.HandleSendMessage(ctx, alice, "Hi Bob", ""))
	for _, conn := range []*chatConn{aliceConn, bobConn} {
		events := conn.drain()
		require.Len(t, events, 1)
		assert.Equal(t, domain.MsgTypeChatMessage, events[0]["type"])
		assert.Equal(t, "Hi Bob", contentOf(events[0]))
	}

	require.NoError(t, env.chat.HandleSendMessage(ctx, bob, "wrong room", "other-room"))
	assert.Equal(t, domain.ErrCodeNotInRoom, bobConn.drain()[0]["code"])

	require.NoError(t, env.chat.HandleSendMessage(ctx, bob, "   ", ""))
	assert.Equal(t, domain.ErrCodeBadRequest, bobConn.drain()[0]["code"])

	require.NoError(t, env.chat.HandleLeaveUser(ctx, bob))
	assert.Equal(t, []string{domain.MsgTypeRoomLeft}, types(bobConn.drain()))
	events = aliceConn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "bob left the chat!", contentOf(events[0]))

	participants, err := env.roomSvc.Participants(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, participants)

	require.NoError(t, env.chat.HandleDisconnect(ctx, alice))
	assert.Empty(t, env.tracker.SubscribersOf(room.ID))
	assert.Equal(t, 1, env.tracker.Sessions())

	page, err := env.relay.History(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestChatService_SwitchRoomsAnnouncesLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceAuth := env.register(t, "alice")
	bobAuth := env.register(t, "bob")
	first, err := env.roomSvc.CreateRoom(ctx, identityOf(aliceAuth), &domain.CreateRoomRequest{Name: "first"})
	require.NoError(t, err)
	second, err := env.roomSvc.CreateRoom(ctx, identityOf(aliceAuth), &domain.CreateRoomRequest{Name: "second"})
	require.NoError(t, err)

	watcher := &chatConn{id: "w"}
	w := env.chat.HandleConnect(watcher)
	require.NoError(t, env.chat.HandleAuth(ctx, w, aliceAuth.AccessToken))
	require.NoError(t, env.chat.HandleAddUser(ctx, w, "", first.ID))
	watcher.drain()

	mover := &chatConn{id: "m"}
	m := env.chat.HandleConnect(mover)
	require.NoError(t, env.chat.HandleAuth(ctx, m, bobAuth.AccessToken))
	require.NoError(t, env.chat.HandleAddUser(ctx, m, "bob", first.ID))
	require.NoError(t, env.chat.HandleAddUser(ctx, m, "bob", second.ID))

	events := watcher.drain()
	require.Len(t, events, 2)
	assert.Equal(t, "bob joined the chat!", contentOf(events[0]))
	assert.Equal(t, "bob left the chat!", contentOf(events[1]))
	assert.Equal(t, second.ID, m.RoomID())

	require.NoError(t, env.chat.HandleAddUser(ctx, m, "mallory", second.ID))
	last := mover.drain()
	assert.Equal(t, domain.ErrCodeForbidden, last[len(last)-1]["code"])
}

func TestChatService_BadToken(t *testing.T) {
	env := newTestEnv(t)
	conn := &chatConn{id: "x"}
	s := env.chat.HandleConnect(conn)

	err := env.chat.HandleAuth(context.Background(), s, "garbage")
	assert.Error(t, err)
	events := conn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0]["success"])
	_, _, authed := s.Identity()
	assert.False(t, authed)
}

func TestChatService_ReauthCannotSwapIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceAuth := env.register(t, "alice")
	bobAuth := env.register(t, "bob")
	room, err := env.roomSvc.CreateRoom(ctx, identityOf(aliceAuth), &domain.CreateRoomRequest{
		Name: "secret", IsPrivate: true, MaxParticipants: intPtr(1),
	})
	require.NoError(t, err)

	conn := &chatConn{id: "a"}
	s := env.chat.HandleConnect(conn)
	require.NoError(t, env.chat.HandleAuth(ctx, s, aliceAuth.AccessToken))
	require.NoError(t, env.chat.HandleAddUser(ctx, s, "", room.ID))
	conn.drain()

	err = env.chat.HandleAuth(ctx, s, bobAuth.AccessToken)
	assert.ErrorIs(t, err, presence.ErrIdentityChange)
	events := conn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeAuthResult, events[0]["type"])
	assert.Equal(t, false, events[0]["success"])

	userID, username, _ := s.Identity()
	assert.Equal(t, aliceAuth.User.ID, userID)
	assert.Equal(t, "alice", username)
	assert.Equal(t, room.ID, s.RoomID())

	require.NoError(t, env.chat.HandleSendMessage(ctx, s, "still me", ""))
	events = conn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0]["message"].(map[string]interface{})["username"])

	// Re-presenting the same user's token is fine.
	require.NoError(t, env.chat.HandleAuth(ctx, s, aliceAuth.AccessToken))
}

func TestChatService_SendAfterRESTLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceAuth := env.register(t, "alice")
	bobAuth := env.register(t, "bob")
	room, err := env.roomSvc.CreateRoom(ctx, identityOf(aliceAuth), &domain.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	aliceConn := &chatConn{id: "a"}
	a := env.chat.HandleConnect(aliceConn)
	require.NoError(t, env.chat.HandleAuth(ctx, a, aliceAuth.AccessToken))
	require.NoError(t, env.chat.HandleAddUser(ctx, a, "", room.ID))

	bobConn := &chatConn{id: "b"}
	b := env.chat.HandleConnect(bobConn)
	require.NoError(t, env.chat.HandleAuth(ctx, b, bobAuth.AccessToken))
	require.NoError(t, env.chat.HandleAddUser(ctx, b, "", room.ID))
	aliceConn.drain()
	bobConn.drain()

	require.NoError(t, env.roomSvc.Leave(ctx, room.ID, bobAuth.User.ID))

	require.NoError(t, env.chat.HandleSendMessage(ctx, b, "ghost message", ""))
	events := bobConn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrCodeNotInRoom, events[0]["code"])
	assert.Empty(t, b.RoomID())

	events = aliceConn.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "bob left the chat!", contentOf(events[0]))

	page, err := env.relay.History(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRoomService_NamesCheckedAfterTrim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := identityOf(env.register(t, "alice"))

	for _, name := range []string{"     ", "  a  ", "  ab ", "\t\n"} {
		_, err := env.roomSvc.CreateRoom(ctx, alice, &domain.CreateRoomRequest{Name: name})
		var fe *FieldError
		require.ErrorAs(t, err, &fe, "name %q", name)
		assert.Equal(t, "name", fe.Field)
	}

	room, err := env.roomSvc.CreateRoom(ctx, alice, &domain.CreateRoomRequest{Name: " general "})
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
}

func TestAccountService_UsernameCheckedAfterTrim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, username := range []string{"   ", " ab ", "  x"} {
		_, err := env.accounts.Register(ctx, &domain.RegisterRequest{
			Username: username,
			Email:    fmt.Sprintf("user%d@example.com", i),
			Password: "secret123",
		})
		var fe *FieldError
		require.ErrorAs(t, err, &fe, "username %q", username)
		assert.Equal(t, "username", fe.Field)
	}

	resp, err := env.accounts.Register(ctx, &domain.RegisterRequest{
		Username: " carol ", Email: "carol@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", resp.User.Username)
}

func TestRoomService_SharedFetchIgnoresCallerCancel(t *testing.T) {
	env := newTestEnv(t)
	alice := identityOf(env.register(t, "alice"))
	room, err := env.roomSvc.CreateRoom(context.Background(), alice, &domain.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	meta, err := env.roomSvc.(*roomServiceImpl).getRoomMeta(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", meta.Name)
}
