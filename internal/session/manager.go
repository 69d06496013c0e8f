package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session binds one authenticated user to one short-term turn buffer. The
// buffer is never shared across users or devices; it lives and dies with the
// session.
type Session struct {
	ID             string
	UserID         string
	Status         Status
	Buffer         *Buffer
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Manager is the explicit per-session store: sessions are keyed by ID with a
// single active session per user, and idle sessions are ended by the janitor.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	bufferCapacity    int
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(bufferCapacity int, inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		bufferCapacity:    bufferCapacity,
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Acquire returns the user's active session, creating one when none exists.
func (m *Manager) Acquire(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.sessionByUser[userID]; ok {
		if s, ok := m.sessions[id]; ok && s.Status == StatusActive {
			s.LastActivityAt = time.Now().UTC()
			return s
		}
	}

	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         StatusActive,
		Buffer:         NewBuffer(m.bufferCapacity),
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s
	m.sessionByUser[userID] = s.ID
	return s
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// EndForUser ends the user's active session, destroying its buffer.
func (m *Manager) EndForUser(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	delete(m.sessionByUser, userID)
	delete(m.sessions, id)
	return s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		expired = append(expired, s)
		delete(m.sessionByUser, s.UserID)
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
