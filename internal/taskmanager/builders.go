package taskmanager

import "fmt"

// NewFlatManager builds a manager whose tasks have no requirements and all
// start together in the first wave.
func NewFlatManager(name string, cfg *Config, tasks ...*Task) (*Manager, error) {
	m := NewManager(name, cfg)
	for _, t := range tasks {
		if len(t.reqs) > 0 {
			return nil, fmt.Errorf("flat manager %q: task %q has requirements", name, t.name)
		}
		if err := m.AddTask(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewSerializedManager builds a manager where each task depends on the
// immediately preceding one, forming a strict chain. Same engine, no
// separate algorithm.
func NewSerializedManager(name string, cfg *Config, tasks ...*Task) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.AutoReqsFromPrevious = true
	m := NewManager(name, &c)
	for _, t := range tasks {
		if len(t.reqs) > 0 {
			return nil, fmt.Errorf("serialized manager %q: task %q has requirements", name, t.name)
		}
		if err := m.AddTask(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SimpleTaskList generates indexed tasks ("1_<base>", "2_<base>", ...)
// from a list of functions, with no arguments or requirements.
func SimpleTaskList(base string, fns ...TaskFunc) []*Task {
	tasks := make([]*Task, 0, len(fns))
	for i, fn := range fns {
		tasks = append(tasks, NewTask(fmt.Sprintf("%d_%s", i+1, base), fn))
	}
	return tasks
}

// Common return validators mapping arbitrary results into the rc set.

// ValidateNotNil classifies a non-nil result as okay, nil as failure.
func ValidateNotNil(ret interface{}) interface{} {
	if ret != nil {
		return RCOkay
	}
	return RCFailure
}

// ValidateTruthy classifies true as okay and anything else as failure.
func ValidateTruthy(ret interface{}) interface{} {
	if b, ok := ret.(bool); ok && b {
		return RCOkay
	}
	return RCFailure
}
