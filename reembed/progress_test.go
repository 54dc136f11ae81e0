package reembed

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Reports(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		interval int
		adds     [][2]int // embedded, failed
		want     []string
		reports  int // progress lines before Finish
	}{
		{
			name: "counts failures", total: 100, interval: 10,
			adds: [][2]int{{25, 0}, {20, 5}, {50, 0}},
			want: []string{"100/100", "100.0%", "5 failed"}, reports: 3,
		},
		{
			name: "below interval stays quiet", total: 1000, interval: 100,
			adds: [][2]int{{50, 0}}, reports: 0,
		},
		{
			name: "crossing interval reports", total: 1000, interval: 100,
			adds: [][2]int{{50, 0}, {50, 0}, {150, 0}},
			want: []string{"250/1000", "25.0%"}, reports: 2,
		},
		{
			name: "clamped to total", total: 100, interval: 10,
			adds: [][2]int{{150, 0}},
			want: []string{"100/100"}, reports: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewProgressTracker(&buf, tt.total, tt.interval)
			p.Start()
			for _, a := range tt.adds {
				p.Add(a[0], a[1])
			}
			assert.Equal(t, tt.reports, strings.Count(buf.String(), "Embedding:"))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 100, 1000)
	p.Start()
	p.Add(70, 5)
	p.Finish()

	out := buf.String()
	assert.Contains(t, out, "75/100", "finish reports what was processed")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "guidelines/s")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgressTracker_NothingToDo(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 0, 0)
	p.Start()
	p.Finish()
	assert.Contains(t, buf.String(), "0/0")
	assert.Contains(t, buf.String(), "100.0%", "nothing to do is complete")
}

func TestProgressTracker_IgnoredBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10, 1)
	p.Add(5, 0)
	p.Finish()
	assert.Empty(t, buf.String())
	assert.Zero(t, p.Elapsed())
}

func TestProgressTracker_Elapsed(t *testing.T) {
	p := NewProgressTracker(&bytes.Buffer{}, 10, 1)
	p.Start()
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, p.Elapsed(), 10*time.Millisecond)
}

func TestProgressTracker_ConcurrentAdds(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 1000, 100)
	p.Start()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				p.Add(9, 1)
			}
		}()
	}
	wg.Wait()
	p.Finish()
	assert.Contains(t, buf.String(), "1000/1000")
	assert.Contains(t, buf.String(), "100 failed")
}
