package guidelines

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/panjf2000/ants/v2"
)

// antsLogger adapts slog to the ants logger interface.
type antsLogger struct {
	logger *slog.Logger
}

func (l *antsLogger) Printf(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func newPool(size int, logger *slog.Logger) (*ants.Pool, error) {
	logger = logger.With("component", "worker-pool")
	return ants.NewPool(size,
		ants.WithLogger(&antsLogger{logger: logger}),
		ants.WithPanicHandler(func(p any) {
			logger.Error("task panicked", "panic", p, "stack", string(debug.Stack()))
		}),
	)
}

// runTask runs task on pool and waits for its result or for ctx to end. A
// task that panics reports ErrTaskPanicked; the pool's panic handler logs it.
func runTask[T any](ctx context.Context, pool *ants.Pool, task func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	err := pool.Submit(func() {
		finished := false
		defer func() {
			if !finished {
				done <- outcome{err: ErrTaskPanicked}
			}
		}()
		v, err := task(ctx)
		finished = true
		done <- outcome{value: v, err: err}
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("submit task: %w", err)
	}

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
