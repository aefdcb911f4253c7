package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/hyprcoach/internal/storage"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// DefaultKey is the storage key the log is persisted under.
const DefaultKey = "hyprcoach.conversation"

// DefaultWindow is how many turns are sent to the model as context.
const DefaultWindow = 10

// Turn is one entry of the conversation log. Turns are never mutated after Append.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	// Error marks a failure message shown to the user; it is not model context.
	Error bool `json:"error,omitempty"`
}

// Store is an append-only, ordered log of turns persisted to a key-value store.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	// persistMu orders writes to kv so an older snapshot never lands last
	persistMu sync.Mutex
	kv    storage.Store
	key   string
	now   func() time.Time
}

// Open loads the persisted log. A missing key yields an empty log.
func Open(ctx context.Context, kv storage.Store, key string) (*Store, error) {
	if kv == nil {
		kv = storage.NewMemoryStore()
	}
	if key == "" {
		key = DefaultKey
	}
	s := &Store{kv: kv, key: key, now: time.Now}

	data, err := kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if err := json.Unmarshal(data, &s.turns); err != nil {
		// a corrupt log should not keep the coach from starting
		log.Warn().Err(err).Str("key", key).Msg("Conversation: discarding unreadable log")
		s.turns = nil
	}
	return s, nil
}

// Append adds a turn and persists the log. The in-memory append stands even
// if persisting fails; the error is returned so the caller can report it.
func (s *Store) Append(ctx context.Context, role Role, text string) (Turn, error) {
	return s.append(ctx, Turn{Role: role, Text: text})
}

// AppendError adds a visible assistant-side failure message.
func (s *Store) AppendError(ctx context.Context, text string) (Turn, error) {
	return s.append(ctx, Turn{Role: Assistant, Text: text, Error: true})
}

func (s *Store) append(ctx context.Context, t Turn) (Turn, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Turn{}, fmt.Errorf("generate turn id: %w", err)
	}
	t.ID = id.String()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	t.CreatedAt = s.now()
	s.turns = append(s.turns, t)
	data, err := json.Marshal(s.turns)
	s.mu.Unlock()

	if err != nil {
		return t, fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return t, fmt.Errorf("persist conversation: %w", err)
	}
	return t, nil
}

// Turns returns a copy of the whole log in conversation order.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Window returns a copy of the last n turns. n <= 0 returns the whole log.
func (s *Store) Window(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.turns, n)
}

// Context returns the last n turns that are model context, skipping error
// and empty turns before the window is taken.
func (s *Store) Context(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var prior []Turn
	for _, t := range s.turns {
		if t.Error || t.Text == "" {
			continue
		}
		prior = append(prior, t)
	}
	return window(prior, n)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear empties the log and removes the persisted key.
func (s *Store) Clear(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Window returns a copy of the last n turns of turns.
func Window(turns []Turn, n int) []Turn {
	return window(turns, n)
}

func window(turns []Turn, n int) []Turn {
	start := 0
	if n > 0 && len(turns) > n {
		start = len(turns) - n
	}
	out := make([]Turn, len(turns)-start)
	copy(out, turns[start:])
	return out
}
