package presence

import (
	"errors"
	"sync"

	"github.com/imaad666/W-Chhatt/pkg/log"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrUnauthenticated = errors.New("session not authenticated")
	ErrEmptyRoom       = errors.New("room id is empty")
	ErrIdentityChange  = errors.New("session already authenticated as another user")
)

// bucket holds the sessions bound to one room. A dead bucket has been
// removed from the tracker and must not receive new members.
type bucket struct {
	mu      sync.RWMutex
	members map[string]*Session
	dead    bool
}

// Tracker is the in-memory index of live sessions and the room each one is
// bound to.
//
// Lock order: bucketsMu before any bucket.mu; two bucket locks are always
// taken in lexical order of their room ids. Session.mu is taken before either.
type Tracker struct {
	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	bucketsMu sync.Mutex
	buckets   map[string]*bucket
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*Session),
		buckets:  make(map[string]*bucket),
	}
}

// Register adds an unbound session for conn.
func (t *Tracker) Register(conn Conn) *Session {
	s := newSession(conn)

	t.sessionsMu.Lock()
	t.sessions[s.id] = s
	t.sessionsMu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldSessionID, s.id).Msg("session registered")
	return s
}

// Bind moves the session into roomID and returns the room it was bound to
// before, if any. Readers of either room never observe the session in both
// rooms or in neither.
func (t *Tracker) Bind(s *Session, username, roomID string) (string, error) {
	if roomID == "" {
		return "", ErrEmptyRoom
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	if s.userID == "" {
		return "", ErrUnauthenticated
	}
	if username != "" {
		s.username = username
	}

	previous := s.roomID
	if previous == roomID {
		return previous, nil
	}

	for {
		target := t.bucketFor(roomID, true)
		var source *bucket
		if previous != "" {
			source = t.bucketFor(previous, false)
		}

		unlock := lockPair(roomID, target, previous, source)
		if target.dead {
			// Reaped between lookup and lock; fetch a fresh bucket.
			unlock()
			continue
		}

		target.members[s.id] = s
		sourceEmpty := false
		if source != nil {
			delete(source.members, s.id)
			sourceEmpty = len(source.members) == 0
		}
		s.roomID = roomID
		unlock()

		if sourceEmpty {
			t.reap(previous)
		}
		return previous, nil
	}
}

// Unbind removes the session from its room. ok is false when the session
// was not bound.
func (t *Tracker) Unbind(s *Session) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.unbindLocked(s)
}

// Unregister unbinds and discards the session. The departure is returned
// when the session was bound to a room.
func (t *Tracker) Unregister(s *Session) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.sessionsMu.Lock()
	if current, ok := t.sessions[s.id]; ok && current == s {
		delete(t.sessions, s.id)
	}
	t.sessionsMu.Unlock()

	if s.closed {
		return Departure{}, false
	}
	s.closed = true

	roomID, ok := t.unbindLocked(s)
	if !ok {
		return Departure{}, false
	}
	return Departure{UserID: s.userID, Username: s.username, RoomID: roomID}, true
}

// SubscribersOf returns a snapshot of the connections bound to roomID.
func (t *Tracker) SubscribersOf(roomID string) []Conn {
	b := t.bucketFor(roomID, false)
	if b == nil {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	conns := make([]Conn, 0, len(b.members))
	for _, s := range b.members {
		conns = append(conns, s.conn)
	}
	return conns
}

// Sessions returns the number of registered sessions.
func (t *Tracker) Sessions() int {
	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()
	return len(t.sessions)
}

// RoomCount returns the number of rooms with at least one bound session.
func (t *Tracker) RoomCount() int {
	t.bucketsMu.Lock()
	defer t.bucketsMu.Unlock()
	return len(t.buckets)
}

func (t *Tracker) unbindLocked(s *Session) (string, bool) {
	roomID := s.roomID
	if roomID == "" {
		return "", false
	}

	empty := false
	if b := t.bucketFor(roomID, false); b != nil {
		b.mu.Lock()
		delete(b.members, s.id)
		empty = len(b.members) == 0
		b.mu.Unlock()
	}
	s.roomID = ""

	if empty {
		t.reap(roomID)
	}
	return roomID, true
}

// bucketFor returns the live bucket of roomID, creating it when create is set.
func (t *Tracker) bucketFor(roomID string, create bool) *bucket {
	t.bucketsMu.Lock()
	defer t.bucketsMu.Unlock()

	b, ok := t.buckets[roomID]
	if !ok && create {
		b = &bucket{members: make(map[string]*Session)}
		t.buckets[roomID] = b
	}
	return b
}

// reap drops the bucket of roomID if it is still empty.
func (t *Tracker) reap(roomID string) {
	t.bucketsMu.Lock()
	defer t.bucketsMu.Unlock()

	b, ok := t.buckets[roomID]
	if !ok {
		return
	}
	b.mu.Lock()
	if len(b.members) == 0 {
		b.dead = true
		delete(t.buckets, roomID)
	}
	b.mu.Unlock()
}

// lockPair write-locks up to two buckets in lexical order of their room ids
// and returns the matching unlock.
func lockPair(idA string, a *bucket, idB string, b *bucket) func() {
	if b == nil || a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}

	first, second := a, b
	if idB < idA {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
