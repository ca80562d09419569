package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"mython/internal/cache"
	"mython/internal/log"
)

const maxSessions = 1024

// Manager hands out one Gate per browser, keyed by an opaque session id.
// Sessions live only in memory and expire after the idle TTL.
type Manager struct {
	creds  Credentials
	gates  *cache.LRUCache[*Gate]
	logger *log.Logger
}

func NewManager(creds Credentials, ttl time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		creds:  creds,
		gates:  cache.NewLRUCache[*Gate](maxSessions, ttl),
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// Cache exposes the session store so it can be registered for cleanup.
func (m *Manager) Cache() *cache.LRUCache[*Gate] { return m.gates }

// Login checks the credentials on a fresh gate and, on success, returns the
// new session id.
func (m *Manager) Login(user, pass string) (string, error) {
	g := NewGate(m.creds)
	if err := g.Login(user, pass); err != nil {
		m.logger.Warn("Login rejected", log.FieldOperation, log.OpLogin, "error_type", log.ErrorTypeAuth)
		return "", err
	}
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	m.gates.Set(id, g)
	m.logger.Info("Login accepted", log.FieldOperation, log.OpLogin, "sessions", m.gates.Size())
	return id, nil
}

// Authenticated reports whether id names a live, logged in session and
// extends its lifetime when it does.
func (m *Manager) Authenticated(id string) bool {
	if id == "" {
		return false
	}
	g, ok := m.gates.Get(id)
	if !ok || !g.Authenticated() {
		return false
	}
	m.gates.Touch(id)
	return true
}

// Logout drops the session. Unknown ids are ignored.
func (m *Manager) Logout(id string) {
	if g, ok := m.gates.Get(id); ok {
		g.Logout()
	}
	m.gates.Delete(id)
	m.logger.Info("Logged out", log.FieldOperation, log.OpLogout)
}

func newSessionID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return u.String(), nil
}
