// Package session implements the credential gate in front of the tracker.
//
// The gate compares a fixed username and password. It keeps no persistence
// and no lockout state; it is a convenience barrier, not an access control.
package session

import (
	"errors"
	"strings"
	"sync"
)

var ErrInvalidCredentials = errors.New("session: invalid credentials")

type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Credentials are compared after trimming surrounding whitespace.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) matches(user, pass string) bool {
	return strings.TrimSpace(user) == strings.TrimSpace(c.Username) &&
		strings.TrimSpace(pass) == strings.TrimSpace(c.Password)
}

// Gate is a two state machine. Its zero value is Unauthenticated.
type Gate struct {
	mu    sync.Mutex
	creds Credentials
	state State
}

func NewGate(creds Credentials) *Gate {
	return &Gate{creds: creds}
}

// Login moves the gate to Authenticated when user and pass match exactly.
// On mismatch the state is left as it was.
func (g *Gate) Login(user, pass string) error {
	if !g.creds.matches(user, pass) {
		return ErrInvalidCredentials
	}
	g.mu.Lock()
	g.state = Authenticated
	g.mu.Unlock()
	return nil
}

func (g *Gate) Logout() {
	g.mu.Lock()
	g.state = Unauthenticated
	g.mu.Unlock()
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Authenticated() bool {
	return g.State() == Authenticated
}
