package intel

import (
	"context"
	"sync"
)

// SessionStore is the pluggable conversation-state backend. The in-memory
// store is the default; a Redis-backed store is available for deployments
// that want sessions to survive a single process (see RedisStore).
//
// Contract notes:
//   - Snapshot creates a session with empty defaults for an unseen id.
//   - Intelligence merges are monotonic: value sets never shrink.
//   - TryMarkReported is an atomic check-and-set; for any session it returns
//     true exactly once, which is what enforces at-most-once reporting when
//     duplicate deliveries race on the same session.
type SessionStore interface {
	// Append adds a message to the session (creating it if absent) and
	// returns the new message count.
	Append(ctx context.Context, sessionID string, msg Message) (int, error)

	// Snapshot returns a point-in-time copy of the session, creating it
	// with empty defaults if absent. Mutating the copy has no effect on
	// stored state.
	Snapshot(ctx context.Context, sessionID string) (Session, error)

	// MergeIntelligence unions the record into the session's accumulated
	// intelligence.
	MergeIntelligence(ctx context.Context, sessionID string, rec Record) error

	// SetClassification records the current best scam-type label.
	SetClassification(ctx context.Context, sessionID string, t ScamType) error

	// MarkScamDetected sets the scam flag. Sticky: once true, stays true.
	MarkScamDetected(ctx context.Context, sessionID string) error

	// TryMarkReported flips the reported flag and returns whether this
	// caller won the flip. Returns false for every call after the first.
	TryMarkReported(ctx context.Context, sessionID string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// memSession pairs one session's state with its own lock, so concurrent
// requests for different sessions never contend.
type memSession struct {
	mu    sync.Mutex
	state Session
}

// MemoryStore implements SessionStore with a keyed in-memory map.
// Sessions are volatile (lost on restart) and never evicted; both are
// accepted limitations of the deployment model, not bugs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memSession),
	}
}

// getOrCreate returns the entry for the id, creating it on first contact.
func (ms *MemoryStore) getOrCreate(sessionID string) *memSession {
	ms.mu.RLock()
	entry, ok := ms.sessions[sessionID]
	ms.mu.RUnlock()
	if ok {
		return entry
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if entry, ok = ms.sessions[sessionID]; ok {
		return entry
	}
	entry = &memSession{state: Session{ID: sessionID}}
	ms.sessions[sessionID] = entry
	return entry
}

func (ms *MemoryStore) Append(_ context.Context, sessionID string, msg Message) (int, error) {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.state.Messages = append(entry.state.Messages, msg)
	return len(entry.state.Messages), nil
}

func (ms *MemoryStore) Snapshot(_ context.Context, sessionID string) (Session, error) {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	return copySession(entry.state), nil
}

func (ms *MemoryStore) MergeIntelligence(_ context.Context, sessionID string, rec Record) error {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.state.Intelligence = entry.state.Intelligence.Merge(rec)
	return nil
}

func (ms *MemoryStore) SetClassification(_ context.Context, sessionID string, t ScamType) error {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.state.ScamType = t
	return nil
}

func (ms *MemoryStore) MarkScamDetected(_ context.Context, sessionID string) error {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.state.ScamDetected = true
	return nil
}

func (ms *MemoryStore) TryMarkReported(_ context.Context, sessionID string) (bool, error) {
	entry := ms.getOrCreate(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.state.Reported {
		return false, nil
	}
	entry.state.Reported = true
	return true, nil
}

func (ms *MemoryStore) Close() error { return nil }

// SessionCount returns the number of live sessions. Exposed for the health
// surface.
func (ms *MemoryStore) SessionCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

func copySession(s Session) Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	out.Intelligence = s.Intelligence.Normalize()
	return out
}

// Ensure MemoryStore implements SessionStore
var _ SessionStore = (*MemoryStore)(nil)
