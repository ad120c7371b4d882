package conversation

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidSession = errors.New("invalid session id")

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

func UserTurn(text string) Turn {
	return Turn{SpeakerUser, text}
}

func AssistantTurn(text string) Turn {
	return Turn{SpeakerAssistant, text}
}

// Store keeps the append-only history of each session. It belongs to the
// front end layer; the query core only ever receives a copy.
type Store interface {
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Clear(ctx context.Context, sessionID string) error
}

func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string][]Turn),
	}
}

type memoryStore struct {
	sessions map[string][]Turn
	sync.RWMutex
}

func (s *memoryStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	s.RLock()
	defer s.RUnlock()

	turns := s.sessions[sessionID]

	history := make([]Turn, len(turns))
	copy(history, turns)
	return history, nil
}

func (s *memoryStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	s.Lock()
	defer s.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

func (s *memoryStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	s.Lock()
	defer s.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
