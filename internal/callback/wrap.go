// Package callback runs after-turn work off the response path.
package callback

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Task is one unit of after-turn work.
type Task func(ctx context.Context) error

// Wrap turns a Task into a func that never panics and logs its outcome.
func Wrap(logger *slog.Logger, name string, task Task, onDone func(name string, err error)) func(ctx context.Context) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) {
		start := time.Now()
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
				logger.Error("callback panic", "name", name, "error", err.Error(), "stack", string(debug.Stack()))
			}
			if onDone != nil {
				onDone(name, err)
			}
		}()

		logger.Debug("callback start", "name", name)
		err = task(ctx)
		if err != nil {
			logger.Error("callback error", "name", name, "error", err.Error())
			return
		}
		logger.Debug("callback done", "name", name, "duration", time.Since(start))
	}
}
