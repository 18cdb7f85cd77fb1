// Package routine runs goroutines with panic recovery so a failing
// background job (a detached cache refresh, a sink flush) is logged instead
// of taking the whole process down.
package routine

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// Runner provides safe goroutine execution with panic recovery
type Runner interface {
	// Go executes fn in a new goroutine with panic recovery
	Go(fn func())

	// GoNamed executes fn in a new goroutine; name is attached to panic logs
	GoNamed(name string, fn func())

	// GoNamedWithContext executes fn with ctx in a new goroutine
	GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context))

	// Wait blocks until every goroutine started by this runner has returned
	Wait()

	// Panics reports how many goroutines started by this runner panicked
	Panics() int64
}

type defaultRunner struct {
	log    logger.Logger
	wg     sync.WaitGroup
	panics atomic.Int64
}

// New creates a new Runner reporting panics to log, or to the process
// logger when log is nil.
func New(log logger.Logger) Runner {
	return &defaultRunner{log: logger.OrGlobal(log)}
}

func (r *defaultRunner) Go(fn func()) {
	r.GoNamed("", fn)
}

func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recover(name)
		fn()
	}()
}

func (r *defaultRunner) GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recover(name)
		fn(ctx)
	}()
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

func (r *defaultRunner) Panics() int64 {
	return r.panics.Load()
}

func (r *defaultRunner) recover(name string) {
	rec := recover()
	if rec == nil {
		return
	}
	r.panics.Add(1)
	fields := []zap.Field{
		zap.Error(ErrPanic(rec)),
		zap.String("stack", string(debug.Stack())),
	}
	if name != "" {
		fields = append([]zap.Field{zap.String("routine", name)}, fields...)
	}
	r.log.Error("goroutine panicked", fields...)
}
