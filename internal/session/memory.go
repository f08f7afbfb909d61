package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
)

// DefaultMaxSessions bounds the number of sessions held in memory.
const DefaultMaxSessions = 10000

// MemoryStore implements ContextStore and BufferStore in process memory.
//
// Each session has its own mutex. The registry mutex guards only the id map
// and the LRU list and is never held while a session is being read or
// written. When more than maxSessions ids are live the least recently used
// session is dropped with both its context and its transcript.
type MemoryStore struct {
	bufferCap   int
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*list.Element
	lru      *list.List
}

type memorySession struct {
	id string

	mu     sync.Mutex
	shared models.SharedContext
	ring   []models.SessionEntry
	head   int
	size   int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store keeping bufferCap entries for each of at most
// maxSessions sessions. Non-positive values select the defaults.
func NewMemoryStore(bufferCap, maxSessions int, opts ...MemoryOption) *MemoryStore {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	s := &MemoryStore{
		bufferCap:   bufferCap,
		maxSessions: maxSessions,
		now:         time.Now,
		sessions:    make(map[string]*list.Element),
		lru:         list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the session state, marking it most recently used. When
// create is set a missing session is allocated, evicting the LRU tail if the
// store is full.
func (s *MemoryStore) lookup(id string, create bool) *memorySession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.sessions[id]; ok {
		s.lru.MoveToFront(el)
		return el.Value.(*memorySession)
	}
	if !create {
		return nil
	}

	sess := &memorySession{id: id}
	s.sessions[id] = s.lru.PushFront(sess)
	for s.lru.Len() > s.maxSessions {
		tail := s.lru.Back()
		s.lru.Remove(tail)
		delete(s.sessions, tail.Value.(*memorySession).id)
	}
	metrics.SessionsActive.Set(float64(s.lru.Len()))
	return sess
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (models.SharedContext, error) {
	sess := s.lookup(sessionID, false)
	if sess == nil {
		return models.SharedContext{}, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.shared, nil
}

func (s *MemoryStore) Update(_ context.Context, sessionID string, update models.ContextUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	sess := s.lookup(sessionID, true)
	sess.mu.Lock()
	sess.shared = sess.shared.Apply(update, s.now())
	sess.mu.Unlock()
	return nil
}

// Forget drops the session's context and transcript.
func (s *MemoryStore) Forget(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.sessions[sessionID]; ok {
		s.lru.Remove(el)
		delete(s.sessions, sessionID)
		metrics.SessionsActive.Set(float64(s.lru.Len()))
	}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, entry models.SessionEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	sess := s.lookup(sessionID, true)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ring == nil {
		sess.ring = make([]models.SessionEntry, s.bufferCap)
	}
	if sess.size < s.bufferCap {
		sess.ring[(sess.head+sess.size)%s.bufferCap] = entry
		sess.size++
		return nil
	}
	sess.ring[sess.head] = entry
	sess.head = (sess.head + 1) % s.bufferCap
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]models.SessionEntry, error) {
	if n <= 0 {
		return []models.SessionEntry{}, nil
	}
	sess := s.lookup(sessionID, false)
	if sess == nil {
		return []models.SessionEntry{}, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if n > sess.size {
		n = sess.size
	}
	out := make([]models.SessionEntry, n)
	start := sess.head + sess.size - n
	for i := 0; i < n; i++ {
		out[i] = sess.ring[(start+i)%s.bufferCap]
	}
	return out, nil
}

func (s *MemoryStore) Len(_ context.Context, sessionID string) (int, error) {
	sess := s.lookup(sessionID, false)
	if sess == nil {
		return 0, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.size, nil
}

// Sessions reports how many sessions are held.
func (s *MemoryStore) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
