package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/idgen"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/pkg/storage"
)

type recordingConn struct {
	id   string
	fail bool

	mu  sync.Mutex
	got [][]byte
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(data []byte) error {
	if c.fail {
		return errors.New("buffer full")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, data)
	return nil
}

func (c *recordingConn) events(t *testing.T) []map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(c.got))
	for _, raw := range c.got {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

// staticSubs maps room ids to fixed subscriber lists.
type staticSubs map[string][]presence.Conn

func (s staticSubs) SubscribersOf(roomID string) []presence.Conn {
	return s[roomID]
}

type fixture struct {
	relay *Relay
	users *repository.GormUserRepository
	rooms *repository.GormRoomRepository
	msgs  *repository.GormMessageRepository
	alice domain.Identity
	bob   domain.Identity
	room  *domain.Room
	other *domain.Room
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

func newFixture(t *testing.T, subs Subscribers) *fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	f := &fixture{
		users: repository.NewGormUserRepository(db),
		rooms: repository.NewGormRoomRepository(db),
		msgs:  repository.NewGormMessageRepository(db),
	}

	for _, name := range []string{"alice", "bob"} {
		u := &domain.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
		require.NoError(t, f.users.Create(ctx, u))
		id := domain.Identity{UserID: u.ID, Username: u.Username}
		if name == "alice" {
			f.alice = id
		} else {
			f.bob = id
		}
	}

	f.room = &domain.Room{Name: "general", CreatorID: f.alice.UserID, CreatorUsername: "alice"}
	require.NoError(t, f.rooms.Create(ctx, f.room))
	f.other = &domain.Room{Name: "random", CreatorID: f.bob.UserID, CreatorUsername: "bob"}
	require.NoError(t, f.rooms.Create(ctx, f.other))

	f.relay = NewRelay(f.msgs, f.users, f.rooms, subs, idgen.NewULIDGenerator(), config.ChatConfig{})
	return f
}

func TestRelay_SendMessageBroadcastsToRoomOnly(t *testing.T) {
	inRoom := &recordingConn{id: "c1"}
	elsewhere := &recordingConn{id: "c2"}
	broken := &recordingConn{id: "c3", fail: true}
	subs := staticSubs{}
	f := newFixture(t, subs)
	subs[f.room.ID] = []presence.Conn{broken, inRoom}
	subs[f.other.ID] = []presence.Conn{elsewhere}

	msg, err := f.relay.SendMessage(context.Background(), "hello", f.room.ID, f.alice)
	require.NoError(t, err)
	assert.Len(t, msg.ID, 26)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, domain.MessageTypeText, msg.Type)

	events := inRoom.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeChatMessage, events[0]["type"])
	payload := events[0]["message"].(map[string]interface{})
	assert.Equal(t, msg.ID, payload["id"])
	assert.Equal(t, "hello", payload["content"])

	assert.Empty(t, elsewhere.events(t))

	stored, err := f.relay.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)
}

func TestRelay_SendMessageValidation(t *testing.T) {
	f := newFixture(t, staticSubs{})
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		roomID  string
		sender  domain.Identity
		wantErr error
	}{
		{"empty", "", f.room.ID, f.alice, ErrContentInvalid},
		{"blank", "   \n\t", f.room.ID, f.alice, ErrContentInvalid},
		{"too long", strings.Repeat("é", 1001), f.room.ID, f.alice, ErrContentInvalid},
		{"at limit", strings.Repeat("é", 1000), f.room.ID, f.alice, nil},
		{"unknown room", "hi", "missing", f.alice, ErrRoomNotFound},
		{"unknown user", "hi", f.room.ID, domain.Identity{UserID: "ghost"}, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.relay.SendMessage(ctx, tt.content, tt.roomID, tt.sender)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	n, err := f.relay.Count(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRelay_AnnouncementsAreNotPersisted(t *testing.T) {
	conn := &recordingConn{id: "c1"}
	subs := staticSubs{}
	f := newFixture(t, subs)
	subs[f.room.ID] = []presence.Conn{conn}
	ctx := context.Background()

	f.relay.AnnounceJoin(ctx, "bob", f.room.ID)
	f.relay.AnnounceLeave(ctx, "bob", f.room.ID)

	events := conn.events(t)
	require.Len(t, events, 2)
	for i, want := range []string{"bob joined the chat!", "bob left the chat!"} {
		assert.Equal(t, domain.MsgTypeSystemMessage, events[i]["type"])
		msg := events[i]["message"].(map[string]interface{})
		assert.Equal(t, want, msg["content"])
		assert.Equal(t, domain.SystemUsername, msg["username"])
		assert.Equal(t, string(domain.MessageTypeSystem), msg["type"])
	}

	n, err := f.relay.Count(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_EditAndDeleteRequireAuthor(t *testing.T) {
	conn := &recordingConn{id: "c1"}
	subs := staticSubs{}
	f := newFixture(t, subs)
	subs[f.room.ID] = []presence.Conn{conn}
	ctx := context.Background()

	msg, err := f.relay.SendMessage(ctx, "original", f.room.ID, f.alice)
	require.NoError(t, err)

	_, err = f.relay.EditMessage(ctx, msg.ID, "hacked", f.bob)
	assert.ErrorIs(t, err, ErrForbidden)
	err = f.relay.DeleteMessage(ctx, msg.ID, f.bob)
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := f.relay.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content)
	assert.False(t, stored.Edited)

	_, err = f.relay.EditMessage(ctx, msg.ID, " ", f.alice)
	assert.ErrorIs(t, err, ErrContentInvalid)

	edited, err := f.relay.EditMessage(ctx, msg.ID, "fixed", f.alice)
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	require.NoError(t, f.relay.DeleteMessage(ctx, msg.ID, f.alice))
	_, err = f.relay.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.ErrorIs(t, f.relay.DeleteMessage(ctx, msg.ID, f.alice), ErrMessageNotFound)
	_, err = f.relay.EditMessage(ctx, msg.ID, "again", f.alice)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = f.relay.GetMessage(ctx, "not-a-message-id")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	types := []string{}
	for _, e := range conn.events(t) {
		types = append(types, e["type"].(string))
	}
	assert.Equal(t, []string{
		domain.MsgTypeChatMessage,
		domain.MsgTypeMessageEdited,
		domain.MsgTypeMessageDeleted,
	}, types)
}

func TestRelay_ReadPaths(t *testing.T) {
	f := newFixture(t, staticSubs{})
	ctx := context.Background()

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f.relay.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var sent []*domain.Message
	for i, content := range []string{"Hello one", "two", "hello three"} {
		sender := f.alice
		if i == 1 {
			sender = f.bob
		}
		msg, err := f.relay.SendMessage(ctx, content, f.room.ID, sender)
		require.NoError(t, err)
		sent = append(sent, msg)
	}
	_, err := f.relay.SendMessage(ctx, "hello elsewhere", f.other.ID, f.alice)
	require.NoError(t, err)

	t.Run("history clamps size", func(t *testing.T) {
		page, err := f.relay.History(ctx, f.room.ID, -1, 1000)
		require.NoError(t, err)
		assert.Equal(t, 0, page.Page)
		assert.Equal(t, 100, page.Size)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Messages, 3)
		assert.Equal(t, sent[2].ID, page.Messages[0].ID)

		page, err = f.relay.History(ctx, f.room.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 50, page.Size)
	})

	t.Run("since", func(t *testing.T) {
		got, err := f.relay.Since(ctx, f.room.ID, sent[0].CreatedAt)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, sent[1].ID, got[0].ID)
	})

	t.Run("search", func(t *testing.T) {
		got, err := f.relay.SearchInRoom(ctx, "HELLO", f.room.ID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by user", func(t *testing.T) {
		got, err := f.relay.ByUser(ctx, f.alice.UserID)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = f.relay.ByUserInRoom(ctx, f.alice.UserID, f.room.ID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestRelay_Attachments(t *testing.T) {
	conn := &recordingConn{id: "c1"}
	subs := staticSubs{}
	f := newFixture(t, subs)
	subs[f.room.ID] = []presence.Conn{conn}
	ctx := context.Background()

	_, err := f.relay.SendAttachment(ctx, f.room.ID, f.alice, Attachment{Filename: "a.txt", Body: strings.NewReader("x"), Size: 1})
	assert.ErrorIs(t, err, ErrAttachmentsDisabled)

	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	f.relay.SetAttachments(NewAttachments(store, 16))

	_, err = f.relay.SendAttachment(ctx, f.room.ID, f.alice, Attachment{Filename: "big.bin", Body: strings.NewReader(strings.Repeat("x", 32)), Size: 32})
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)

	msg, err := f.relay.SendAttachment(ctx, f.room.ID, f.alice, Attachment{
		Filename:    "../../cat photo.png",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("PNG!"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeImage, msg.Type)
	require.True(t, strings.HasPrefix(msg.Content, AttachmentURLPrefix))
	assert.True(t, strings.HasSuffix(msg.Content, "/cat_photo.png"))

	key := strings.TrimPrefix(msg.Content, AttachmentURLPrefix)
	rc, err := f.relay.attachments.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "PNG!", string(body))

	_, err = f.relay.EditMessage(ctx, msg.ID, "text now", f.alice)
	assert.ErrorIs(t, err, ErrContentInvalid)

	require.NoError(t, f.relay.DeleteMessage(ctx, msg.ID, f.alice))
	_, err = f.relay.attachments.Open(ctx, key)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)

	_, err = f.relay.attachments.Open(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\My File.txt`, "My_File.txt"},
		{"...", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}
