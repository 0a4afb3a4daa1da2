package auth

import (
	"errors"
	"sync"
	"time"
)

const (
	defaultNonceTTL = 5 * time.Minute
	maxStoredNonces = 100_000
	janitorInterval = time.Minute
)

var ErrStoreFull = errors.New("nonce store full")

// NonceStore tracks issued challenge nonces so each one can be consumed at
// most once. Issuance is still random-first: the store adds replay
// protection on top of the randomness source's uniqueness guarantee.
type NonceStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

func NewNonceStore() *NonceStore {
	s := &NonceStore{
		entries: make(map[string]time.Time),
		ttl:     defaultNonceTTL,
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Put records a freshly issued nonce. It fails only when the store is at
// capacity, which callers should surface as a transient server error.
func (s *NonceStore) Put(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= maxStoredNonces {
		return ErrStoreFull
	}
	s.entries[nonce] = time.Now().Add(s.ttl)
	return nil
}

// Consume atomically uses up a nonce. It reports true exactly once per
// issued nonce, and false for unknown, expired, or already-used values.
func (s *NonceStore) Consume(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[nonce]
	if !ok {
		return false
	}
	delete(s.entries, nonce)
	return time.Now().Before(expiry)
}

// Stop terminates the janitor goroutine.
func (s *NonceStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *NonceStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for nonce, expiry := range s.entries {
				if now.After(expiry) {
					delete(s.entries, nonce)
				}
			}
			s.mu.Unlock()
		}
	}
}
