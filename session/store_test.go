package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, clock *fakeClock, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s, err := NewStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_Options(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero timeout", WithTimeout(0)},
		{"negative capacity", WithCapacity(-1)},
		{"zero history", WithHistoryLimit(0)},
		{"nil clock", WithClock(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.opt)
			assert.Error(t, err)
		})
	}

	s, err := NewStore(WithLogger(nil))
	require.NoError(t, err)
	st := s.Stats()
	assert.Equal(t, DefaultCapacity, st.Capacity)
	assert.Equal(t, DefaultTimeout, st.Timeout)
}

func TestStore_CreateAndGet(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	initial := map[string]any{"portfolio": "P1"}
	id := s.Create(initial)
	initial["portfolio"] = "changed"

	clock.Advance(time.Minute)
	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "P1", sess.Context["portfolio"], "initial context is copied")
	assert.Equal(t, clock.Now(), sess.LastAccessed)
	assert.Equal(t, clock.Now().Add(-time.Minute), sess.CreatedAt)

	sess.Context["portfolio"] = "mutated"
	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "P1", again.Context["portfolio"], "snapshots are detached")

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithTimeout(time.Hour))

	id := s.Create(nil)
	clock.Advance(59 * time.Minute)
	_, err := s.Get(id)
	require.NoError(t, err, "access before timeout")

	clock.Advance(59 * time.Minute)
	_, err = s.Get(id)
	require.NoError(t, err, "the previous access refreshed the session")

	clock.Advance(time.Hour + time.Second)
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Stats().Total, "expired session is removed on access")
}

func TestStore_HistoryIsFIFO(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	id := s.Create(nil)

	for i := 1; i <= 11; i++ {
		require.NoError(t, s.AddTurn(id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	turns, err := s.History(id, 0)
	require.NoError(t, err)
	require.Len(t, turns, DefaultHistoryLimit)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("q%d", i+2), turn.Query)
		assert.Equal(t, fmt.Sprintf("a%d", i+2), turn.Response)
	}

	last, err := s.History(id, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, "q9", last[0].Query)
	assert.Equal(t, "q11", last[2].Query)

	assert.ErrorIs(t, s.AddTurn("missing", "q", "a"), ErrNotFound)
	_, err = s.History("missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LRUEviction(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCapacity(2))

	first := s.Create(nil)
	clock.Advance(time.Second)
	second := s.Create(nil)
	clock.Advance(time.Second)

	_, err := s.Get(first)
	require.NoError(t, err)
	clock.Advance(time.Second)

	third := s.Create(nil)

	_, err = s.Get(second)
	assert.ErrorIs(t, err, ErrNotFound, "least recently accessed is evicted")
	_, err = s.Get(first)
	assert.NoError(t, err)
	_, err = s.Get(third)
	assert.NoError(t, err)
}

func TestStore_CreatePurgesExpiredBeforeEvicting(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCapacity(2), WithTimeout(time.Minute))

	stale := s.Create(nil)
	clock.Advance(30 * time.Second)
	fresh := s.Create(nil)
	clock.Advance(45 * time.Second)

	s.Create(nil)

	_, err := s.Get(stale)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(fresh)
	assert.NoError(t, err, "a live session survives when an expired one frees the slot")
}

func TestStore_UpdateContext(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	id := s.Create(map[string]any{"a": 1, "b": 2})

	merged, err := s.UpdateContext(id, map[string]any{"b": 3, "c": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": "x"}, merged)

	merged["a"] = 99
	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Context["a"])

	_, err = s.UpdateContext("missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	snapshot, err := s.Context(id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": "x"}, snapshot)
	snapshot["c"] = "changed"
	again, err := s.Context(id)
	require.NoError(t, err)
	assert.Equal(t, "x", again["c"], "Context returns a copy")

	_, err = s.Context("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	id := s.Create(nil)

	require.NoError(t, s.Delete(id))
	assert.ErrorIs(t, s.Delete(id), ErrNotFound)
	_, err := s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_StatsAndSweep(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithTimeout(30*time.Minute), WithCapacity(10))

	s.Create(nil)
	clock.Advance(45 * time.Minute)
	s.Create(nil)
	clock.Advance(20 * time.Minute)

	st := s.Stats()
	assert.Equal(t, 2, st.Total, "stats do not expire sessions")
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.CreatedLastHour)
	assert.Equal(t, 10, st.Capacity)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Sweep())
	assert.Equal(t, 1, s.Stats().Total)
}

func TestStore_Janitor(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithTimeout(time.Minute))
	s.Create(nil)
	clock.Advance(2 * time.Minute)

	require.NoError(t, s.StartJanitor(context.Background(), 5*time.Millisecond))
	assert.ErrorIs(t, s.StartJanitor(context.Background(), time.Millisecond), ErrJanitorRunning)
	assert.Error(t, s.StartJanitor(context.Background(), 0))

	require.Eventually(t, func() bool { return s.Stats().Total == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, err := NewStore(WithCapacity(20))
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := s.Create(map[string]any{"worker": w})
				_ = s.AddTurn(id, "q", "a")
				_, _ = s.UpdateContext(id, map[string]any{"i": i})
				_, _ = s.History(id, 5)
				_ = s.Stats()
				if i%3 == 0 {
					_ = s.Delete(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Stats().Total, 20)
}
