// Package cron schedules chains of tasks with robfig/cron. The cache uses it
// to revalidate stale collections in the background, independent of reads.
package cron

import (
	"context"

	"github.com/venueops/entitycache/logger"
)

// Task is one step of a chain
type Task interface {
	// Name identifies the task in logs
	Name() string
	// Run executes the task. ctx carries the chain's SharedData.
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

// Name returns TaskName
func (t TaskFunc) Name() string { return t.TaskName }

// Run calls Fn
func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

// Chain is a list of tasks run sequentially on a schedule
type Chain struct {
	// Name is the name of the chain
	Name string
	// Spec is the cron spec of the chain, with seconds
	Spec string
	// Tasks are the tasks in the chain
	Tasks []Task
}

// Cron manages scheduled chains
type Cron interface {
	// Start begins the scheduler
	Start()
	// Close stops the scheduler and waits for running chains to complete
	Close()
	// AddTasks schedules tasks as chain name.
	// The cron spec has six fields, seconds first. A failing task aborts the chain.
	AddTasks(name string, spec string, tasks ...Task) error
	// AddChain is AddTasks for a Chain
	AddChain(chain Chain) error
	// Run executes chain name now, outside its schedule, and returns the
	// first task error
	Run(ctx context.Context, name string) error
}

// NewCron creates a cron manager.
// Every task is wrapped with panic recovery and logging, then with mws in order.
func NewCron(log logger.Logger, mws ...Middleware) Cron {
	log = logger.OrGlobal(log)
	defaultMws := []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	return newCronManager(log, append(defaultMws, mws...)...)
}
