package cron

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// Middleware wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares wraps t so that mws[0] runs outermost
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// around returns a task named like next that runs exec
func around(next Task, exec func(ctx context.Context) error) Task {
	return TaskFunc{TaskName: next.Name(), Fn: exec}
}

// recoveryMiddleware turns a task panic into an error that aborts the chain
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return around(next, func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("task panicked",
						zap.String("task", next.Name()),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
					err = ErrTaskPanic(next.Name(), r)
				}
			}()
			return next.Run(ctx)
		})
	}
}

// loggingMiddleware logs the outcome and duration of every task run
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return around(next, func(ctx context.Context) error {
			start := time.Now()
			err := next.Run(ctx)
			fields := []zap.Field{
				zap.String("task", next.Name()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Error("task failed", append(fields, zap.Error(err))...)
				return err
			}
			log.Debug("task completed", fields...)
			return nil
		})
	}
}

// WithTimeout bounds every task run by d
func WithTimeout(d time.Duration) Middleware {
	return func(next Task) Task {
		return around(next, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Run(ctx)
		})
	}
}

// cronLogger reports robfig/cron's scheduler messages through zap
type cronLogger struct {
	logger logger.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}
