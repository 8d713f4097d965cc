package taskmanager

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTaskOperating is returned when starting a task that already ran or is
// still running.
var ErrTaskOperating = errors.New("task already operating or finished")

// DuplicateTaskError is returned by AddTask when a task with the same name
// is already registered.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already registered", e.Name)
}

// MissingTaskReferenceError is returned before execution when a task
// requires names that are not registered with the manager.
type MissingTaskReferenceError struct {
	Task    string
	Missing []string
}

func (e *MissingTaskReferenceError) Error() string {
	return fmt.Sprintf("task %q requires unknown task(s): %s", e.Task, strings.Join(e.Missing, ", "))
}

// CycleError is returned before execution when the dependency graph
// contains a cycle.
type CycleError struct {
	Err error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %v", e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// InvalidReturnError records a task return value that could not be
// classified into a return code.
type InvalidReturnError struct {
	Task  string
	Value interface{}
}

func (e *InvalidReturnError) Error() string {
	return fmt.Sprintf("task %q returned unclassifiable value %#v", e.Task, e.Value)
}
