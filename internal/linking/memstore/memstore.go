// Package memstore is the default, in-memory session store. Sessions are
// lost on restart, which matches their lifecycle: a linking attempt is not
// expected to survive a redeploy.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/bank-bridge/internal/linking"
)

type entry struct {
	sess      linking.Session
	expiresAt time.Time
}

// Store holds sessions in memory with a sliding TTL. Safe for concurrent
// use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates an in-memory session store whose entries expire ttl after
// their last read or write.
func New(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements linking.Store. A hit refreshes the expiry.
func (s *Store) Get(ctx context.Context, id string) (linking.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return linking.Session{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return linking.Session{}, false, nil
	}
	e.expiresAt = s.now().Add(s.ttl)
	s.entries[id] = e
	return e.sess, true, nil
}

// Put implements linking.Store.
func (s *Store) Put(ctx context.Context, id string, sess linking.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = entry{sess: sess, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete implements linking.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Ensure Store implements the session store interface.
var _ linking.Store = (*Store)(nil)
