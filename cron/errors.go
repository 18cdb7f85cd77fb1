package cron

import "fmt"

var (
	// ErrNoTasks is returned when attempting to add a chain job with no tasks
	ErrNoTasks = fmt.Errorf("cron: no tasks provided")

	// ErrInvalidSpec is returned when a cron spec string is invalid
	ErrInvalidSpec = fmt.Errorf("cron: invalid cron spec")

	// ErrCronClosed is returned when attempting to operate on a closed cron manager
	ErrCronClosed = fmt.Errorf("cron: cron manager is closed")

	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("cron: invalid config")

	// ErrUnknownChain is returned by Run for a chain that was never added
	ErrUnknownChain = fmt.Errorf("cron: unknown chain")
)

// ErrSpec wraps a cron spec parse error
func ErrSpec(spec string, err error) error {
	return fmt.Errorf("%w %q: %w", ErrInvalidSpec, spec, err)
}

// ErrTaskPanic converts a recovered task panic to an error
func ErrTaskPanic(task string, r any) error {
	return fmt.Errorf("cron: task %s panicked: %v", task, r)
}
