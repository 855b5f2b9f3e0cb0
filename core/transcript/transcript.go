// Package transcript holds the ordered message log of a conversation. The
// store is the single source of truth for what is rendered and what is sent
// as context on the next turn.
package transcript

import (
	"errors"
	"sync"
)

var (
	ErrInvalidState = errors.New("transcript: last message is not streaming")
	ErrEmpty        = errors.New("transcript: no messages")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string

	// IsStreaming marks the single assistant message currently being
	// assembled. At most one message in a store has it set.
	IsStreaming bool
}

// Store is an append-ordered message log. Identity of a message is its
// position; there is no reordering and no concurrent insert path. The
// orchestrator is the sole writer and issues operations sequentially per
// turn. The mutex only guards snapshot reads against the writer.
type Store struct {
	mu       sync.RWMutex
	messages []Message
}

func NewStore() *Store {
	return &Store{}
}

// Append adds a message at the end of the log. Appending while another
// message is still streaming fails: a new turn must not open before the
// previous one closed.
func (s *Store) Append(message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 && s.messages[n-1].IsStreaming {
		return ErrInvalidState
	}
	s.messages = append(s.messages, message)
	return nil
}

// UpdateLast replaces the content of the final message. It only applies to
// the open streaming message; content of closed messages is immutable.
func (s *Store) UpdateLast(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages)
	if n == 0 {
		return ErrEmpty
	}
	if !s.messages[n-1].IsStreaming {
		return ErrInvalidState
	}
	s.messages[n-1].Content = content
	return nil
}

// Finalize clears the streaming flag on the last message, closing the turn.
// Finalizing an already-closed or empty log is a no-op.
func (s *Store) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 {
		s.messages[n-1].IsStreaming = false
	}
}

// RemoveLast deletes the last message. Used when a turn aborts and the
// assistant placeholder has to be unwound.
func (s *Store) RemoveLast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 {
		s.messages = s.messages[:n-1]
	}
}

// Messages returns a point-in-time copy of the log, oldest first.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

// Last returns a copy of the final message, or false when the log is empty.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
