package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Do(t *testing.T) {
	transient := errors.New("embedding service unavailable")
	tests := []struct {
		name      string
		attempts  int
		failFirst int
		wantErr   error
		wantCalls int
	}{
		{"first try", 3, 0, nil, 1},
		{"eventual success", 5, 2, nil, 3},
		{"all attempts fail", 3, 10, transient, 3},
		{"zero attempts", 0, 0, ErrInvalidMaxAttempts, 0},
		{"negative attempts", -1, 0, ErrInvalidMaxAttempts, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			b := Backoff{Attempts: tt.attempts, BaseDelay: time.Millisecond}
			err := b.Do(context.Background(), func(int) error {
				calls++
				if calls <= tt.failFirst {
					return transient
				}
				return nil
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestBackoff_DoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 10, BaseDelay: 10 * time.Millisecond}
	err := b.Do(ctx, func(int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("batch failed")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestBackoff_DoStopsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	b := Backoff{Attempts: 10, BaseDelay: 10 * time.Millisecond}
	err := b.Do(ctx, func(int) error {
		calls++
		time.Sleep(30 * time.Millisecond)
		return errors.New("batch failed")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, calls, 3)
}

func TestBackoff_DoWaitsLonger(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	b := Backoff{Attempts: 4, BaseDelay: 10 * time.Millisecond}
	err := b.Do(context.Background(), func(attempt int) error {
		if attempt > 1 {
			gaps = append(gaps, time.Since(last))
		}
		last = time.Now()
		if attempt < 4 {
			return errors.New("batch failed")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, gaps, 3)
	assert.GreaterOrEqual(t, gaps[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[2], 40*time.Millisecond)
}

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"first failure", Backoff{BaseDelay: time.Second}, 1, time.Second},
		{"doubles", Backoff{BaseDelay: time.Second}, 3, 4 * time.Second},
		{"capped", Backoff{BaseDelay: time.Second, MaxDelay: 3 * time.Second}, 3, 3 * time.Second},
		{"cap above schedule", Backoff{BaseDelay: time.Second, MaxDelay: time.Minute}, 2, 2 * time.Second},
		{"base above cap", Backoff{BaseDelay: time.Minute, MaxDelay: time.Second}, 1, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.backoff.delay(tt.attempt))
		})
	}
}

func TestBackoff_DoPassesAttempt(t *testing.T) {
	var seen []int
	b := Backoff{Attempts: 3, BaseDelay: time.Millisecond}
	err := b.Do(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}
