package taskmanager

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/toposort"
	"github.com/sirupsen/logrus"
)

// WaitStatus reports how a Wait call ended.
type WaitStatus int

const (
	// WaitReady means the manager finished before the wait timed out.
	WaitReady WaitStatus = iota
	// WaitTimeout means the wait gave up; the manager keeps running.
	WaitTimeout
)

func (s WaitStatus) String() string {
	switch s {
	case WaitReady:
		return "ready"
	case WaitTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Config holds manager behaviour knobs. Start from DefaultConfig and
// adjust; NewManager fills unset collection and interval fields.
type Config struct {
	// DryRun skips task function execution, traversing the graph for
	// validation only. Dry-run tasks classify as okay.
	DryRun bool

	// DefaultTaskTimeout applies to tasks without their own timeout.
	// Zero means such tasks never time out.
	DefaultTaskTimeout time.Duration

	// DefaultKillCallback is invoked when killing a task that has no
	// kill callback of its own.
	DefaultKillCallback KillFunc

	// StopRunningTasksOnHalt kills running tasks if the operating loop
	// halts without a recognized terminal condition.
	StopRunningTasksOnHalt bool

	// ReportStillRunning logs the set of still-running tasks whenever a
	// task reports completion.
	ReportStillRunning bool

	// ContinueRCs are the return codes that do not halt the manager.
	// Defaults to {okay, unstable}.
	ContinueRCs []RC

	// AutoReqsFromPrevious makes every added task without explicit reqs
	// depend on the previously added task, forming a strict chain.
	AutoReqsFromPrevious bool

	// PollInterval is the operating loop's sleep between iterations.
	PollInterval time.Duration

	// TasksAnnounceTrace demotes all task announcements to TRACE.
	TasksAnnounceTrace bool

	// AnnounceAsTrace demotes the manager's own announcements to TRACE.
	AnnounceAsTrace bool

	// Logger receives all announcements. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger
}

// DefaultConfig returns the manager defaults: one-hour task timeout,
// continue on okay/unstable, 100ms poll interval.
func DefaultConfig() *Config {
	return &Config{
		DefaultTaskTimeout: time.Hour,
		ReportStillRunning: true,
		ContinueRCs:        []RC{RCOkay, RCUnstable},
		PollInterval:       100 * time.Millisecond,
		Logger:             logrus.StandardLogger(),
	}
}

// Manager owns a named, insertion-ordered collection of tasks and runs the
// polling loop that starts ready tasks, detects timeouts and failing
// return codes, and aggregates a worst-case result code.
type Manager struct {
	name string
	cfg  *Config

	mu            sync.Mutex
	tasks         map[string]*Task
	order         []string
	operating     bool
	stopOperating bool
	finished      bool
	startTime     time.Time
	endTime       time.Time
	parent        *Manager
	messages      []string

	shared *SharedContext
	done   chan struct{}
}

// NewManager creates a manager. A nil config uses DefaultConfig.
func NewManager(name string, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.ContinueRCs == nil {
		c.ContinueRCs = []RC{RCOkay, RCUnstable}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &Manager{
		name:   name,
		cfg:    &c,
		tasks:  make(map[string]*Task),
		shared: NewSharedContext(),
		done:   make(chan struct{}),
	}
}

// Name returns the manager's name. Names identify managers in logs; they
// are not globally unique.
func (m *Manager) Name() string { return m.name }

// Shared returns the context tasks use to exchange data.
func (m *Manager) Shared() *SharedContext { return m.shared }

// SetDryRun toggles dry-run mode. Only meaningful before Go is called.
func (m *Manager) SetDryRun(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.DryRun = v
}

// AddTask registers a task under its name and attaches this manager to it.
func (m *Manager) AddTask(t *Task) error {
	if t == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if t.name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	m.mu.Lock()
	if _, exists := m.tasks[t.name]; exists {
		m.mu.Unlock()
		m.announce(logrus.ErrorLevel, "duplicate task name", logrus.Fields{"name": t.name})
		return &DuplicateTaskError{Name: t.name}
	}
	if m.cfg.AutoReqsFromPrevious && len(m.order) > 0 && len(t.reqs) == 0 {
		t.reqs[m.order[len(m.order)-1]] = struct{}{}
	}
	m.tasks[t.name] = t
	m.order = append(m.order, t.name)
	m.mu.Unlock()

	t.attachManager(m)
	return nil
}

// Get returns the registered task with the given name.
func (m *Manager) Get(name string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[name]
	return t, ok
}

// TaskNames returns all task names in insertion order.
func (m *Manager) TaskNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Size returns the number of registered tasks.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// IsOperating reports whether the operating loop is running.
func (m *Manager) IsOperating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operating
}

// Finished reports whether the manager has finished.
func (m *Manager) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Duration returns elapsed time since start, or the final duration once
// finished. Zero if the manager never started.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startTime.IsZero() {
		return 0
	}
	if m.endTime.IsZero() {
		return time.Since(m.startTime)
	}
	return m.endTime.Sub(m.startTime)
}

// Messages returns the manager's announcement history.
func (m *Manager) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// Go is the synchronous entry point: it blocks until all tasks finish or a
// halt condition is reached, and returns the aggregated worst return code.
// Structural errors (duplicate handled at AddTask; missing references,
// cycles) are returned before any task executes.
func (m *Manager) Go() (RC, error) {
	m.mu.Lock()
	if m.operating || m.finished {
		m.mu.Unlock()
		return RCOkay, fmt.Errorf("task manager %q already started", m.name)
	}
	m.mu.Unlock()

	if err := m.prepare(); err != nil {
		return RCOkay, err
	}
	m.start()
	m.operatingLoop()
	m.finish()
	return m.WorstRC(), nil
}

// GoNoWait fires Go in a background goroutine and returns immediately.
// Callers poll Finished or call Wait.
func (m *Manager) GoNoWait() {
	go func() {
		if _, err := m.Go(); err != nil {
			m.announce(logrus.ErrorLevel, "task manager failed", logrus.Fields{"error": err})
		}
	}()
}

// Wait blocks until the manager finishes. A positive timeout bounds the
// wait; zero or negative waits forever.
func (m *Manager) Wait(timeout time.Duration) WaitStatus {
	if timeout <= 0 {
		<-m.done
		return WaitReady
	}
	select {
	case <-m.done:
		return WaitReady
	case <-time.After(timeout):
		return WaitTimeout
	}
}

// Stop requests a halt of the operating loop. Running tasks are not killed
// unless the halt path decides to.
func (m *Manager) Stop() {
	m.announce(logrus.WarnLevel, "stop requested", nil)
	m.requestStop()
}

// prepare validates the graph and splices out deactivated tasks. It runs
// once, before any task executes, so graph mutation here needs no locking
// against task goroutines.
func (m *Manager) prepare() error {
	if err := m.verifyTaskReferences(); err != nil {
		return err
	}
	m.buildReverseEdges()
	if err := m.checkForCycles(); err != nil {
		return err
	}
	m.removeDeactivatedTasks()
	return nil
}

// verifyTaskReferences fails fast when any task requires a name that is
// not registered.
func (m *Manager) verifyTaskReferences() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		t := m.tasks[name]
		var missing []string
		for req := range t.reqs {
			if _, ok := m.tasks[req]; !ok {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			m.announceLocked(logrus.ErrorLevel, "missing task references", logrus.Fields{"task": name, "missing": missing})
			return &MissingTaskReferenceError{Task: name, Missing: missing}
		}
	}
	return nil
}

func (m *Manager) buildReverseEdges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		for req := range m.tasks[name].reqs {
			m.tasks[req].nextTasks[name] = struct{}{}
		}
	}
}

// checkForCycles rejects cyclic graphs before execution begins. The
// polling loop would otherwise spin forever finding zero ready tasks.
func (m *Manager) checkForCycles() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var edges []toposort.Edge
	for _, name := range m.order {
		t := m.tasks[name]
		if len(t.reqs) == 0 {
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for req := range t.reqs {
			edges = append(edges, toposort.Edge{req, name})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		m.announceLocked(logrus.ErrorLevel, "dependency cycle detected", logrus.Fields{"error": err})
		return &CycleError{Err: err}
	}
	return nil
}

// removeDeactivatedTasks splices inactive tasks out of the live graph:
// each is marked finished so it never schedules and never blocks, its
// dependents inherit its requirements, and the reverse edges are adjusted
// symmetrically. Users can toggle steps on and off without editing every
// other step's dependency list.
func (m *Manager) removeDeactivatedTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		d := m.tasks[name]
		if d.active {
			continue
		}
		d.finished = true
		for next := range d.nextTasks {
			nt := m.tasks[next]
			for req := range d.reqs {
				nt.reqs[req] = struct{}{}
			}
			delete(nt.reqs, d.name)
		}
		for req := range d.reqs {
			rt := m.tasks[req]
			for next := range d.nextTasks {
				rt.nextTasks[next] = struct{}{}
			}
			delete(rt.nextTasks, d.name)
		}
		m.announceLocked(logrus.DebugLevel, "deactivated task spliced out", logrus.Fields{"task": d.name})
	}
}

func (m *Manager) start() {
	m.announce(logrus.InfoLevel, "task manager starting", logrus.Fields{
		"tasks":        m.Size(),
		"active_tasks": len(m.activeTaskNames()),
	})
	m.mu.Lock()
	m.startTime = time.Now()
	m.operating = true
	m.mu.Unlock()
}

func (m *Manager) finish() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.operating = false
	m.finished = true
	m.mu.Unlock()
	close(m.done)
	m.announce(logrus.InfoLevel, "task manager finishing", logrus.Fields{
		"time":     m.Duration().Round(time.Millisecond),
		"worst_rc": m.WorstRC(),
	})
}

// operatingLoop is the scheduler: completion check, condition checks, halt
// check, start ready tasks, sleep. This is a polling loop by design; it
// trades a small fixed latency per wave for simplicity.
func (m *Manager) operatingLoop() {
	for {
		if !m.IsOperating() {
			m.handleOperatingLoopHalted()
			return
		}
		if m.allActiveTasksFinished() {
			return
		}
		m.checkConditions()
		if m.stopRequested() {
			return
		}
		m.startReadyTasks()
		time.Sleep(m.cfg.PollInterval)
	}
}

func (m *Manager) checkConditions() {
	m.checkRunningTasksForTimeout()
	m.checkFinishedTasksForFailRC()
	m.checkParentStillOperating()
}

func (m *Manager) stopRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopOperating
}

func (m *Manager) requestStop() {
	m.mu.Lock()
	m.stopOperating = true
	m.mu.Unlock()
}

// checkRunningTasksForTimeout halts the whole manager when any running
// task exceeds its timeout. A hung task usually signals a stuck external
// resource that further tasks would also hang on.
func (m *Manager) checkRunningTasksForTimeout() {
	for _, t := range m.snapshotTasks() {
		if !t.Operating() {
			continue
		}
		if t.CheckTimeout() {
			m.handleTaskTimeout(t)
		}
	}
}

func (m *Manager) handleTaskTimeout(t *Task) {
	m.announce(logrus.ErrorLevel, "task timed out, killing task and stopping", logrus.Fields{
		"task":    t.Name(),
		"timeout": t.effectiveTimeout(),
		"elapsed": t.Elapsed().Round(time.Millisecond),
	})
	t.markTimedOut()
	t.Kill()
	m.requestStop()
}

// checkFinishedTasksForFailRC halts the manager when any finished task
// carries a return code outside ContinueRCs.
func (m *Manager) checkFinishedTasksForFailRC() {
	for _, t := range m.snapshotTasks() {
		if !t.Active() || !t.Finished() {
			continue
		}
		rc, ok := t.ReturnCode()
		if !ok || !m.rcAllowed(rc) {
			m.handleTaskFailRC(t, rc)
		}
	}
}

func (m *Manager) rcAllowed(rc RC) bool {
	for _, allowed := range m.cfg.ContinueRCs {
		if rc == allowed {
			return true
		}
	}
	return false
}

func (m *Manager) handleTaskFailRC(t *Task, rc RC) {
	m.announce(logrus.ErrorLevel, "task got fail rc, stopping", logrus.Fields{"task": t.Name(), "rc": rc})
	m.requestStop()
}

// checkParentStillOperating cascades a parent manager's halt downward.
// Only sub-managers embedded via NewSubManagerTask have a parent.
func (m *Manager) checkParentStillOperating() {
	m.mu.Lock()
	parent := m.parent
	m.mu.Unlock()
	if parent == nil {
		return
	}
	if !parent.IsOperating() {
		m.announce(logrus.ErrorLevel, "parent task manager no longer operating, stopping", logrus.Fields{"parent": parent.Name()})
		m.requestStop()
	}
}

// startReadyTasks starts every ready task in lexicographic name order for
// reproducibility. Each task runs in its own goroutine; within a wave
// tasks execute concurrently with no defined completion order.
func (m *Manager) startReadyTasks() {
	for _, name := range m.ReadyTasks() {
		t, ok := m.Get(name)
		if !ok {
			continue
		}
		if err := t.Go(m.cfg.DryRun); err != nil {
			m.announce(logrus.ErrorLevel, "failed to start task", logrus.Fields{"task": name, "error": err})
		}
	}
}

// ReadyTasks returns the sorted names of tasks that are active, not yet
// started, and whose requirements are all finished.
func (m *Manager) ReadyTasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []string
	for _, name := range m.order {
		t := m.tasks[name]
		if !t.Active() || t.Operating() || t.Finished() {
			continue
		}
		ok := true
		for req := range t.reqs {
			rt, exists := m.tasks[req]
			if !exists || !rt.Finished() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	return ready
}

// handleTaskReportsFinished is invoked from each task's own goroutine on
// completion.
func (m *Manager) handleTaskReportsFinished(_ *Task) {
	if !m.cfg.ReportStillRunning {
		return
	}
	running := m.runningTaskNames()
	if len(running) > 0 {
		m.announce(logrus.DebugLevel, "tasks still running", logrus.Fields{"still_running": running})
	}
}

// handleOperatingLoopHalted is the defensive path for the loop exiting
// without a recognized terminal condition. It should be unreachable.
func (m *Manager) handleOperatingLoopHalted() {
	m.announce(logrus.ErrorLevel, "operating loop halted unexpectedly", logrus.Fields{"current_tasks": m.runningTaskNames()})
	if m.cfg.StopRunningTasksOnHalt {
		m.StopAllTasks()
	}
}

// StopAllTasks kills every currently running task.
func (m *Manager) StopAllTasks() {
	for _, t := range m.snapshotTasks() {
		if t.Operating() {
			t.Kill()
		}
	}
}

// WorstRC aggregates the recorded return codes of active tasks: the
// maximum positive code if any (escalating severity), else the minimum
// negative code (timeout sentinel), else okay.
func (m *Manager) WorstRC() RC {
	var maxRC, minRC RC
	any := false
	for _, t := range m.snapshotTasks() {
		if !t.Active() {
			continue
		}
		rc, ok := t.ReturnCode()
		if !ok {
			continue
		}
		if !any {
			maxRC, minRC = rc, rc
			any = true
			continue
		}
		if rc > maxRC {
			maxRC = rc
		}
		if rc < minRC {
			minRC = rc
		}
	}
	switch {
	case !any:
		return RCOkay
	case maxRC > 0:
		return maxRC
	case minRC < 0:
		return minRC
	default:
		return RCOkay
	}
}

// TaskRCs returns the recorded return code of every active task.
func (m *Manager) TaskRCs() map[string]RC {
	rcs := make(map[string]RC)
	for _, t := range m.snapshotTasks() {
		if !t.Active() {
			continue
		}
		if rc, ok := t.ReturnCode(); ok {
			rcs[t.Name()] = rc
		}
	}
	return rcs
}

func (m *Manager) allActiveTasksFinished() bool {
	for _, t := range m.snapshotTasks() {
		if !t.Active() {
			continue
		}
		if !t.Finished() {
			return false
		}
	}
	return true
}

func (m *Manager) snapshotTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]*Task, 0, len(m.order))
	for _, name := range m.order {
		tasks = append(tasks, m.tasks[name])
	}
	return tasks
}

func (m *Manager) runningTaskNames() []string {
	var running []string
	for _, t := range m.snapshotTasks() {
		if t.Operating() {
			running = append(running, t.Name())
		}
	}
	sort.Strings(running)
	return running
}

func (m *Manager) activeTaskNames() []string {
	var active []string
	for _, t := range m.snapshotTasks() {
		if t.Active() {
			active = append(active, t.Name())
		}
	}
	return active
}

func (m *Manager) attachParent(p *Manager) {
	m.mu.Lock()
	m.parent = p
	m.mu.Unlock()
}

func (m *Manager) announce(level logrus.Level, msg string, fields logrus.Fields) {
	m.mu.Lock()
	m.announceLocked(level, msg, fields)
	m.mu.Unlock()
}

// announceLocked requires m.mu to be held.
func (m *Manager) announceLocked(level logrus.Level, msg string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["manager"] = m.name
	if m.parent != nil {
		fields["parent"] = m.parent.name
	}
	if m.cfg.AnnounceAsTrace {
		level = logrus.TraceLevel
	}
	m.messages = append(m.messages, formatAnnouncement(msg, fields))
	m.cfg.Logger.WithFields(fields).Log(level, msg)
}

// String implements fmt.Stringer for log display.
func (m *Manager) String() string {
	return fmt.Sprintf("TaskManager(name=%q)", m.name)
}
