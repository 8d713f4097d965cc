package workflow

// File is the YAML shape of a declarative workflow.
type File struct {
	Name           string     `yaml:"name"`
	DefaultTimeout string     `yaml:"default_timeout"`
	PollInterval   string     `yaml:"poll_interval"`
	ContinueRCs    []int      `yaml:"continue_rcs"`
	Tasks          []TaskSpec `yaml:"tasks"`
}

// TaskSpec declares a single shell-command task. Each reqs entry may also
// hold several whitespace-separated names.
type TaskSpec struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Reqs    []string `yaml:"reqs"`
	Timeout string   `yaml:"timeout"`
	Active  *bool    `yaml:"active"`
}
