// Package session holds the per-connection state of a voice conversation:
// resolved credentials, the selected persona, the conversation history, and
// the connection lifecycle.
package session

import (
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/protocol"
)

// ErrAlreadyConfigured is returned when Configure runs a second time.
var ErrAlreadyConfigured = errors.New("session already configured")

// Lifecycle is the connection phase. It only moves forward.
type Lifecycle int32

const (
	AwaitingConfig Lifecycle = iota
	Active
	Closing
	Closed
)

func (l Lifecycle) String() string {
	switch l {
	case AwaitingConfig:
		return "awaiting-config"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role
	Text string
}

// Session is the state of one connection. Credentials and persona are fixed
// once Configure succeeds; history grows in user/assistant pairs.
type Session struct {
	ID string

	lifecycle atomic.Int32

	mu          sync.RWMutex
	credentials Credentials
	selected    Selection
	persona     persona.Persona
	history     []Turn
}

// Option customizes a Session.
type Option func(*Session)

// WithBackends tells the session which backend serves each capability, so
// client keys named after another backend are not applied.
func WithBackends(selected Selection) Option {
	return func(s *Session) {
		s.selected = maps.Clone(selected)
	}
}

// New creates a session awaiting configuration, seeded with process defaults.
func New(defaults Credentials, opts ...Option) *Session {
	creds, _ := defaults.Merge(nil, nil)
	s := &Session{
		ID:          uuid.New().String(),
		credentials: creds,
		persona:     persona.Lookup(persona.DefaultID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure applies a client config and activates the session. It returns
// the override key names that did not map to any capability.
func (s *Session) Configure(cfg protocol.Config) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CompareAndSwap(int32(AwaitingConfig), int32(Active)) {
		return nil, ErrAlreadyConfigured
	}

	creds, unknown := s.credentials.Merge(cfg.Keys, s.selected)
	s.credentials = creds
	s.persona = persona.Lookup(cfg.Persona)
	return unknown, nil
}

// Lifecycle returns the current phase.
func (s *Session) Lifecycle() Lifecycle {
	return Lifecycle(s.lifecycle.Load())
}

// Advance moves the lifecycle forward to next. Backward moves are ignored
// and reported as false.
func (s *Session) Advance(next Lifecycle) bool {
	for {
		cur := s.lifecycle.Load()
		if int32(next) <= cur {
			return false
		}
		if s.lifecycle.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// Credentials returns a copy of the resolved credentials.
func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, _ := s.credentials.Merge(nil, nil)
	return out
}

// Persona returns the selected persona.
func (s *Session) Persona() persona.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// History returns a snapshot of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

// AppendExchange records a user turn and the assistant's reply together.
func (s *Session) AppendExchange(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Turn{Role: RoleUser, Text: user},
		Turn{Role: RoleAssistant, Text: assistant},
	)
}
