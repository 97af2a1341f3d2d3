// Package ratelimit throttles write operations per caller identity.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrLimitExceeded is returned when an identity has used up its allowance.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Config holds the throttling settings.
type Config struct {
	// Limit is the number of operations allowed per Window
	Limit int

	// Window is the period over which Limit refills
	Window time.Duration

	// IdleTTL evicts limiters of identities not seen for this long
	IdleTTL time.Duration
}

// DefaultConfig returns 30 operations per minute with a 10 minute idle TTL.
func DefaultConfig() Config {
	return Config{
		Limit:   30,
		Window:  time.Minute,
		IdleTTL: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.IdleTTL < c.Window {
		return fmt.Errorf("idle TTL %s must be at least the window %s", c.IdleTTL, c.Window)
	}
	return nil
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per identity. Buckets refill continuously,
// so an identity regains capacity gradually instead of at fixed window
// boundaries. Entries idle for longer than IdleTTL are evicted; a fresh
// bucket starts full, which matches a bucket that refilled while idle.
type Store struct {
	config  Config
	every   rate.Limit
	now     func() time.Time
	log     *logrus.Logger
	mu      sync.Mutex
	entries map[string]*entry
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store.
func NewStore(config Config, log *logrus.Logger, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Store{
		config:  config,
		every:   rate.Every(config.Window / time.Duration(config.Limit)),
		now:     time.Now,
		log:     log,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Allow consumes one operation for identity and returns ErrLimitExceeded
// when none is left.
func (s *Store) Allow(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	e, ok := s.entries[identity]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.every, s.config.Limit)}
		s.entries[identity] = e
	}
	e.lastSeen = now

	if !e.limiter.AllowN(now, 1) {
		s.log.WithField("identity", identity).Debug("Rate limit exceeded")
		return ErrLimitExceeded
	}
	return nil
}

// Evict drops idle identities and returns how many were removed.
func (s *Store) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evictLocked(s.now())
}

// Len returns the number of tracked identities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Store) evictLocked(now time.Time) int {
	removed := 0
	for identity, e := range s.entries {
		if now.Sub(e.lastSeen) > s.config.IdleTTL {
			delete(s.entries, identity)
			removed++
		}
	}
	return removed
}
