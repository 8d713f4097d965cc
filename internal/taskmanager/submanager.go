package taskmanager

import "context"

// NewSubManager creates a manager intended to be embedded as a single task
// inside a parent manager via NewSubManagerTask. Once attached, it checks
// on every scheduling iteration whether the parent is still operating and
// halts itself when the parent has stopped, cascading the halt downward.
func NewSubManager(name string, cfg *Config) *Manager {
	return NewManager(name, cfg)
}

// NewSubManagerTask wraps a sub-manager as an ordinary task: the task's
// function runs the sub-manager's Go and returns its worst return code.
// Adding the task to a parent manager attaches that parent to the
// sub-manager. The parent never mutates the sub-manager's internal graph.
func NewSubManagerTask(name string, sub *Manager, opts ...TaskOption) *Task {
	t := NewTask(name, func(ctx context.Context, _ *SharedContext) (interface{}, error) {
		rc, err := sub.Go()
		if err != nil {
			return nil, err
		}
		return rc, nil
	}, opts...)
	t.sub = sub
	return t
}
