// Package session holds the in-memory state of active voice captures. The
// store is sharded so concurrent connections do not contend on one lock;
// a session's audio buffer only ever grows until a decision takes it.
package session

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Snapshot is the immutable view of a session handed to the decision
// engine. Take transfers buffer ownership, so the engine can segment and
// mutate it without further locking.
type Snapshot struct {
	ID         string
	SampleRate int
	Buffer     []byte
	LastActive time.Time
}

type entry struct {
	sampleRate int
	buffer     []byte
	lastActive time.Time
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// Store is a sharded map of capture sessions keyed by session ID.
type Store struct {
	defaultRate int
	maxBytes    int
	now         func() time.Time
	shards      [shardCount]*shard
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBufferBytes caps each session buffer. Once a session reaches the
// cap, further appended audio is discarded. Zero means unlimited.
func WithMaxBufferBytes(n int) Option {
	return func(s *Store) { s.maxBytes = n }
}

// withClock overrides the time source. Used by tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store. Sessions created lazily by Append use
// defaultSampleRate.
func NewStore(defaultSampleRate int, opts ...Option) *Store {
	s := &Store{
		defaultRate: defaultSampleRate,
		now:         time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Start creates a session or resets an existing one to an empty buffer.
// A non-positive sampleRate falls back to the store default.
func (s *Store) Start(id string, sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = s.defaultRate
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.sessions[id] = &entry{sampleRate: sampleRate, lastActive: s.now()}
}

// Append adds a chunk to the session buffer, creating the session with the
// default sample rate if it does not exist. Returns the buffer length after
// the append. Appends hold the shard lock, so two appends to the same
// session never interleave.
func (s *Store) Append(id string, chunk []byte) int {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.sessions[id]
	if !ok {
		e = &entry{sampleRate: s.defaultRate}
		sh.sessions[id] = e
	}
	if s.maxBytes > 0 {
		// Keep the earliest audio: decisions read the head of the buffer,
		// so bytes past the cap would be ignored anyway.
		if room := s.maxBytes - len(e.buffer); room < len(chunk) {
			if room < 0 {
				room = 0
			}
			chunk = chunk[:room]
		}
	}
	e.buffer = append(e.buffer, chunk...)
	e.lastActive = s.now()
	return len(e.buffer)
}

// Clear removes a session. Removing an absent session is a no-op, and a
// decision already holding the session's snapshot is unaffected.
func (s *Store) Clear(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.sessions, id)
}

// Take removes the session and returns its snapshot. The returned buffer
// is exclusively owned by the caller. Returns false if no session exists.
func (s *Store) Take(id string) (Snapshot, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	delete(sh.sessions, id)
	return Snapshot{
		ID:         id,
		SampleRate: e.sampleRate,
		Buffer:     e.buffer,
		LastActive: e.lastActive,
	}, true
}

// BufferLen reports the current buffer size of a session, or 0 if the
// session does not exist.
func (s *Store) BufferLen(id string) int {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if e, ok := sh.sessions[id]; ok {
		return len(e.buffer)
	}
	return 0
}

// Active reports the number of live sessions across all shards.
func (s *Store) Active() int {
	var n int
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// PruneIdle removes sessions with no activity for at least maxIdle and
// returns how many were dropped. The app layer calls this on a ticker; the
// store itself runs no timers.
func (s *Store) PruneIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	var pruned int
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.sessions {
			if e.lastActive.Before(cutoff) {
				delete(sh.sessions, id)
				pruned++
			}
		}
		sh.mu.Unlock()
	}
	return pruned
}
