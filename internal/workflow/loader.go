package workflow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maxkimambo/taskman/internal/shell"
	"github.com/maxkimambo/taskman/internal/taskmanager"
)

// Load reads a workflow file and builds a manager of shell-command tasks.
func Load(path string) (*taskmanager.Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Parse(data)
}

// Parse builds a manager from workflow YAML. Graph validation (missing
// references, cycles) happens when the manager runs, not here.
func Parse(data []byte) (*taskmanager.Manager, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	if f.Name == "" {
		f.Name = "workflow"
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("workflow %q has no tasks", f.Name)
	}

	cfg := taskmanager.DefaultConfig()
	if f.DefaultTimeout != "" {
		d, err := time.ParseDuration(f.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: invalid default_timeout: %w", f.Name, err)
		}
		cfg.DefaultTaskTimeout = d
	}
	if f.PollInterval != "" {
		d, err := time.ParseDuration(f.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: invalid poll_interval: %w", f.Name, err)
		}
		cfg.PollInterval = d
	}
	if len(f.ContinueRCs) > 0 {
		rcs := make([]taskmanager.RC, 0, len(f.ContinueRCs))
		for _, rc := range f.ContinueRCs {
			rcs = append(rcs, taskmanager.RC(rc))
		}
		cfg.ContinueRCs = rcs
	}

	m := taskmanager.NewManager(f.Name, cfg)
	for _, ts := range f.Tasks {
		task, err := buildTask(ts)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", f.Name, err)
		}
		if err := m.AddTask(task); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", f.Name, err)
		}
	}
	return m, nil
}

func buildTask(ts TaskSpec) (*taskmanager.Task, error) {
	if ts.Name == "" {
		return nil, fmt.Errorf("task with command %q has no name", ts.Command)
	}
	if ts.Command == "" {
		return nil, fmt.Errorf("task %q has no command", ts.Name)
	}

	var opts []taskmanager.TaskOption
	if reqs := splitReqs(ts.Reqs); len(reqs) > 0 {
		opts = append(opts, taskmanager.WithReqs(reqs...))
	}
	if ts.Timeout != "" {
		d, err := time.ParseDuration(ts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("task %q: invalid timeout: %w", ts.Name, err)
		}
		opts = append(opts, taskmanager.WithTimeout(d))
	}
	if ts.Active != nil && !*ts.Active {
		opts = append(opts, taskmanager.Inactive())
	}
	return shell.CommandTask(ts.Name, ts.Command, opts...), nil
}

func splitReqs(entries []string) []string {
	var reqs []string
	for _, entry := range entries {
		reqs = append(reqs, strings.Fields(entry)...)
	}
	return reqs
}
