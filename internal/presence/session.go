package presence

import "sync"

// Conn is the outbound side of a client connection.
type Conn interface {
	ID() string
	// Send enqueues data without blocking. It fails when the connection's
	// buffer is full or the connection is closed.
	Send(data []byte) error
}

// Session is the tracker's view of one connection. All fields are guarded by
// mu, which also serialises tracker operations on the same session.
type Session struct {
	id   string
	conn Conn

	mu       sync.Mutex
	userID   string
	username string
	roomID   string
	closed   bool
}

func newSession(conn Conn) *Session {
	return &Session{id: conn.ID(), conn: conn}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Conn() Conn {
	return s.conn
}

// Authenticate attaches an identity to the session. Once set, the identity
// can only be re-confirmed, never replaced.
func (s *Session) Authenticate(userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" && s.userID != userID {
		return ErrIdentityChange
	}
	s.userID = userID
	s.username = username
	return nil
}

// Identity returns the authenticated user, ok is false before Authenticate.
func (s *Session) Identity() (userID, username string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.username, s.userID != ""
}

// RoomID returns the bound room, empty when unbound.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Departure is what the relay needs to announce a session leaving a room.
type Departure struct {
	UserID   string
	Username string
	RoomID   string
}
