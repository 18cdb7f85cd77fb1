package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// specParser accepts six-field specs (seconds first) and descriptors like @every 1m
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// chainJob runs a chain of tasks sequentially
type chainJob struct {
	name   string
	tasks  []Task
	logger logger.Logger
	// mu keeps a scheduled run and a manual Run of the same chain apart
	mu sync.Mutex
}

// Run implements cron.Job
func (j *chainJob) Run() {
	_ = j.run(context.Background())
}

// run executes every task with a fresh SharedData and stops at the first failure
func (j *chainJob) run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	shared := &SharedData{}
	ctx = context.WithValue(ctx, sharedDataKey, shared)

	start := time.Now()
	for _, task := range j.tasks {
		if err := task.Run(ctx); err != nil {
			j.logger.Warn("chain aborted",
				zap.String("chain", j.name),
				zap.String("task", task.Name()),
				zap.Error(err),
			)
			return err
		}
	}

	j.logger.Info("chain completed",
		zap.String("chain", j.name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// cronManager is the default implementation of the Cron interface
type cronManager struct {
	cron        *cron.Cron
	middlewares []Middleware
	logger      logger.Logger

	mu     sync.Mutex
	chains map[string]*chainJob
	closed bool
}

// newCronManager creates a new cron manager instance
func newCronManager(log logger.Logger, mws ...Middleware) *cronManager {
	cl := cronLogger{logger: log}
	scheduler := cron.New(
		cron.WithParser(specParser),
		cron.WithLogger(cl),
		// a revalidation slower than its schedule skips the next tick
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)
	return &cronManager{
		cron:        scheduler,
		middlewares: mws,
		logger:      log,
		chains:      make(map[string]*chainJob),
	}
}

// Start begins the cron scheduler
func (m *cronManager) Start() {
	m.cron.Start()
}

// Close stops the cron scheduler and waits for running jobs to complete
func (m *cronManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	ctx := m.cron.Stop()
	<-ctx.Done()
}

// AddTasks adds a chain of tasks to be executed according to the cron spec
// Example: "0 */5 * * * *" (every five minutes at second 0)
func (m *cronManager) AddTasks(name, spec string, tasks ...Task) error {
	if len(tasks) == 0 {
		return ErrNoTasks
	}
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return ErrSpec(spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrCronClosed
	}
	if _, ok := m.chains[name]; ok {
		return fmt.Errorf("cron: chain %s already added", name)
	}

	// task names are prefixed with the chain name in logs
	wrappedTasks := make([]Task, len(tasks))
	for i, task := range tasks {
		named := TaskFunc{TaskName: name + ":" + task.Name(), Fn: task.Run}
		wrappedTasks[i] = applyMiddlewares(named, m.middlewares...)
	}

	job := &chainJob{
		name:   name,
		tasks:  wrappedTasks,
		logger: m.logger,
	}
	m.cron.Schedule(schedule, job)
	m.chains[name] = job

	m.logger.Info("chain scheduled",
		zap.String("chain", name),
		zap.String("spec", spec),
		zap.Int("task_count", len(tasks)),
	)

	return nil
}

// AddChain is alias for AddTasks
func (m *cronManager) AddChain(chain Chain) error {
	return m.AddTasks(chain.Name, chain.Spec, chain.Tasks...)
}

// Run executes chain name synchronously
func (m *cronManager) Run(ctx context.Context, name string) error {
	m.mu.Lock()
	job, ok := m.chains[name]
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrCronClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return job.run(ctx)
}
