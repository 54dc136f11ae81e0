// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session keeps conversation state for follow-up queries.
//
// A Store maps session ids to a bounded history of turns and a free-form
// context map. Sessions expire after a period without access and the least
// recently used session is evicted when the store is full. One mutex guards
// every operation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/guidelines/core"
)

const (
	// DefaultTimeout is how long a session survives without access.
	DefaultTimeout = time.Hour

	// DefaultCapacity is the maximum number of live sessions.
	DefaultCapacity = 100

	// DefaultHistoryLimit is the number of turns a session keeps.
	DefaultHistoryLimit = 10
)

// Session is a snapshot of one conversation. Mutating it does not change
// the store.
type Session struct {
	ID           string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	Turns        []core.Turn    `json:"turns"`
	Context      map[string]any `json:"context"`
}

func (s *Session) snapshot() *Session {
	return &Session{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed,
		Turns:        append([]core.Turn(nil), s.Turns...),
		Context:      maps.Clone(s.Context),
	}
}

// Stats describes the store.
type Stats struct {
	Total           int           `json:"total_sessions"`
	Active          int           `json:"active_sessions"`
	CreatedLastHour int           `json:"sessions_last_hour"`
	Capacity        int           `json:"max_sessions"`
	Timeout         time.Duration `json:"session_timeout"`
}

// Store is a concurrent TTL and LRU bounded session map.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	timeout      time.Duration
	capacity     int
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger

	janitorStop context.CancelFunc
	janitorDone chan struct{}
}

// Option configures a Store.
type Option func(*Store) error

// WithTimeout sets the idle timeout. Default is DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) error {
		if d <= 0 {
			return fmt.Errorf("session timeout must be positive, got %s", d)
		}
		s.timeout = d
		return nil
	}
}

// WithCapacity sets the maximum number of sessions. Default is DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("session capacity must be positive, got %d", n)
		}
		s.capacity = n
		return nil
	}
}

// WithHistoryLimit sets how many turns a session keeps. Default is DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("history limit must be positive, got %d", n)
		}
		s.historyLimit = n
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		s.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "sessions")
		return nil
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		sessions:     make(map[string]*Session),
		timeout:      DefaultTimeout,
		capacity:     DefaultCapacity,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		logger:       slog.Default().With("component", "sessions"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create allocates a session seeded with a copy of initial and returns its id.
// Expired sessions are purged first; if the store is still full the least
// recently accessed session is evicted.
func (s *Store) Create(initial map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	if len(s.sessions) >= s.capacity {
		s.evictOldestLocked()
	}

	ctx := maps.Clone(initial)
	if ctx == nil {
		ctx = make(map[string]any)
	}
	sess := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
		Context:      ctx,
	}
	s.sessions[sess.ID] = sess
	s.logger.Info("session created", "session_id", sess.ID, "total", len(s.sessions))
	return sess.ID
}

// Get returns a snapshot of the session and refreshes its last access.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touchLocked(id)
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

// AddTurn appends a turn, dropping the oldest once the history is full.
func (s *Store) AddTurn(id, query, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touchLocked(id)
	if err != nil {
		return err
	}
	sess.Turns = append(sess.Turns, core.Turn{Query: query, Response: response, Timestamp: sess.LastAccessed})
	if over := len(sess.Turns) - s.historyLimit; over > 0 {
		sess.Turns = append(sess.Turns[:0:0], sess.Turns[over:]...)
	}
	s.logger.Debug("turn recorded", "session_id", id, "turns", len(sess.Turns))
	return nil
}

// UpdateContext shallow-merges update into the session context and returns
// a copy of the merged context.
func (s *Store) UpdateContext(id string, update map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touchLocked(id)
	if err != nil {
		return nil, err
	}
	maps.Copy(sess.Context, update)
	return maps.Clone(sess.Context), nil
}

// Context returns a copy of the session context.
func (s *Store) Context(id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touchLocked(id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(sess.Context), nil
}

// History returns the last limit turns, oldest first. limit <= 0 returns all.
func (s *Store) History(id string, limit int) ([]core.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touchLocked(id)
	if err != nil {
		return nil, err
	}
	turns := sess.Turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]core.Turn{}, turns...), nil
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// Stats counts sessions without expiring or touching any.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{
		Total:    len(s.sessions),
		Capacity: s.capacity,
		Timeout:  s.timeout,
	}
	for _, sess := range s.sessions {
		if !s.expired(sess, now) {
			st.Active++
		}
		if now.Sub(sess.CreatedAt) <= time.Hour {
			st.CreatedLastHour++
		}
	}
	return st
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// StartJanitor sweeps every interval until ctx is done or Close is called.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("janitor interval must be positive, got %s", interval)
	}
	s.mu.Lock()
	if s.janitorStop != nil {
		s.mu.Unlock()
		return ErrJanitorRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.janitorStop = cancel
	s.janitorDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("janitor swept sessions", "removed", n)
				}
			}
		}
	}()
	return nil
}

// Close stops the janitor, if any, and waits for it to exit.
func (s *Store) Close() error {
	s.mu.Lock()
	stop, done := s.janitorStop, s.janitorDone
	s.janitorStop, s.janitorDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return nil
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastAccessed) > s.timeout
}

// touchLocked returns the live session and refreshes its last access,
// deleting it if it has expired.
func (s *Store) touchLocked(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		s.logger.Info("session expired", "session_id", id)
		return nil, ErrNotFound
	}
	sess.LastAccessed = now
	return sess, nil
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "removed", removed)
	}
	return removed
}

func (s *Store) evictOldestLocked() {
	var oldest *Session
	for _, sess := range s.sessions {
		if oldest == nil || sess.LastAccessed.Before(oldest.LastAccessed) ||
			(sess.LastAccessed.Equal(oldest.LastAccessed) && sess.ID < oldest.ID) {
			oldest = sess
		}
	}
	if oldest != nil {
		delete(s.sessions, oldest.ID)
		s.logger.Info("session evicted at capacity", "session_id", oldest.ID)
	}
}
