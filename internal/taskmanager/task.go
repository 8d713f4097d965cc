package taskmanager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskFunc is the unit of work a Task executes. The context is cancelled
// when the task is killed; the shared context lets tasks in the same
// manager exchange data. Arguments are captured by closure.
type TaskFunc func(ctx context.Context, shared *SharedContext) (interface{}, error)

// KillFunc is a best-effort cancellation request for a running task. It is
// not guaranteed to terminate the work; the supplied callback is
// responsible for actually stopping it (e.g. killing a subprocess).
type KillFunc func(t *Task)

// RetValidationFunc normalizes a task's raw return value before it is
// classified into a return code.
type RetValidationFunc func(ret interface{}) interface{}

// Task is a named unit of work with optional timeout, dependencies and
// return-code classification. A task belongs to exactly one Manager and
// transitions not-started -> operating -> finished exactly once.
type Task struct {
	name            string
	fn              TaskFunc
	timeout         time.Duration
	killCallback    KillFunc
	retValidation   RetValidationFunc
	announceAsTrace bool

	// Dependency graph fields. Mutated only before the manager's
	// operating loop starts (AddTask and prepare).
	reqs      map[string]struct{}
	nextTasks map[string]struct{}
	active    bool

	mu        sync.Mutex
	manager   *Manager
	sub       *Manager // set for sub-manager tasks
	cancel    context.CancelFunc
	startTime time.Time
	endTime   time.Time
	elapsed   time.Duration
	wasRun    bool
	operating bool
	finished  bool
	result    interface{}
	rc        RC
	rcSet     bool
	gotBadRC  bool
	err       error
	messages  []string
}

// TaskOption configures optional task parameters at construction time.
type TaskOption func(*Task)

// WithTimeout sets the task's own timeout. Zero falls back to the
// manager's default; zero on both means the task never times out.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.timeout = d }
}

// WithReqs declares the names of tasks that must finish before this task
// may start.
func WithReqs(names ...string) TaskOption {
	return func(t *Task) {
		for _, name := range names {
			t.reqs[name] = struct{}{}
		}
	}
}

// WithKillCallback sets the callback invoked when the task is killed on
// timeout or halt.
func WithKillCallback(fn KillFunc) TaskOption {
	return func(t *Task) { t.killCallback = fn }
}

// WithRetValidation sets a normalizer applied to the task's return value
// before return-code classification.
func WithRetValidation(fn RetValidationFunc) TaskOption {
	return func(t *Task) { t.retValidation = fn }
}

// Inactive excludes the task from scheduling; the manager splices it out
// of the graph before the operating loop starts.
func Inactive() TaskOption {
	return func(t *Task) { t.active = false }
}

// WithAnnounceAsTrace demotes all of this task's announcements to TRACE.
func WithAnnounceAsTrace() TaskOption {
	return func(t *Task) { t.announceAsTrace = true }
}

// NewTask creates a task. The name must be unique within the manager the
// task is added to.
func NewTask(name string, fn TaskFunc, opts ...TaskOption) *Task {
	t := &Task{
		name:      name,
		fn:        fn,
		active:    true,
		reqs:      make(map[string]struct{}),
		nextTasks: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task's unique name.
func (t *Task) Name() string { return t.name }

// Active reports whether the task participates in scheduling.
func (t *Task) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Reqs returns a sorted copy of the task's dependency names.
func (t *Task) Reqs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedNames(t.reqs)
}

// NextTasks returns a sorted copy of the reverse dependency edges. This is
// diagnostic information; scheduling never reads it.
func (t *Task) NextTasks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedNames(t.nextTasks)
}

// Operating reports whether the task is currently running.
func (t *Task) Operating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.operating
}

// Finished reports whether the task has finished running.
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// WasRun reports whether the task was ever started.
func (t *Task) WasRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wasRun
}

// StartTime returns when the task started, or the zero time if it never
// started.
func (t *Task) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime
}

// EndTime returns when the task finished, or the zero time.
func (t *Task) EndTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endTime
}

// Elapsed returns how long the task has been running, or its final
// duration once finished.
func (t *Task) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Result returns the raw value the task's function returned.
func (t *Task) Result() interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// ReturnCode returns the task's classified return code; ok is false if no
// code has been recorded yet.
func (t *Task) ReturnCode() (rc RC, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rc, t.rcSet
}

// GotBadRC reports whether the task ever recorded a non-okay return code.
func (t *Task) GotBadRC() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gotBadRC
}

// Err returns the execution error captured from the task's function, if
// any. Execution errors are classified as RCErrors, never propagated.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Messages returns the task's announcement history, an in-memory mirror of
// its log output.
func (t *Task) Messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.messages...)
}

func (t *Task) attachManager(m *Manager) {
	t.mu.Lock()
	t.manager = m
	sub := t.sub
	t.mu.Unlock()
	if sub != nil {
		sub.attachParent(m)
	}
}

// Go starts the task asynchronously in its own goroutine and returns
// immediately. It fails if the task is already operating or finished.
func (t *Task) Go(dryRun bool) error {
	t.mu.Lock()
	if t.operating || t.finished {
		t.mu.Unlock()
		return fmt.Errorf("task %q: %w", t.name, ErrTaskOperating)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.operating = true
	t.wasRun = true
	t.startTime = time.Now()
	t.mu.Unlock()

	t.announce(logrus.InfoLevel, "task starting", logrus.Fields{"timeout": t.effectiveTimeout()})
	go t.run(ctx, dryRun)
	return nil
}

// run executes the task's function and is always followed by finish, which
// reports completion to the owning manager.
func (t *Task) run(ctx context.Context, dryRun bool) {
	defer t.finish()

	var ret interface{}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		if dryRun {
			return
		}
		ret, err = t.fn(ctx, t.sharedContext())
	}()

	if err != nil {
		t.handleFuncError(err)
		return
	}
	t.validateRet(ret)
}

func (t *Task) sharedContext() *SharedContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manager == nil {
		return nil
	}
	return t.manager.Shared()
}

func (t *Task) finish() {
	t.mu.Lock()
	t.endTime = time.Now()
	t.elapsed = t.endTime.Sub(t.startTime)
	t.operating = false
	t.finished = true
	cancel := t.cancel
	mgr := t.manager
	rc, rcSet := t.rc, t.rcSet
	elapsed := t.elapsed
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	fields := logrus.Fields{"time": elapsed.Round(time.Millisecond)}
	if rcSet {
		fields["rc"] = rc
	}
	t.announce(logrus.InfoLevel, "task finishing", fields)
	if mgr != nil {
		mgr.handleTaskReportsFinished(t)
	}
}

// handleFuncError classifies an error returned (or panic raised) by the
// task's function. A single task's failure never crashes the scheduler.
func (t *Task) handleFuncError(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.announce(logrus.ErrorLevel, "task func error", logrus.Fields{"error": err})
	t.setRC(RCErrors)
}

// validateRet normalizes and classifies the task's raw return value.
func (t *Task) validateRet(ret interface{}) {
	if t.retValidation != nil {
		ret = t.retValidation(ret)
	}
	t.mu.Lock()
	t.result = ret
	t.mu.Unlock()

	rc, err := t.classifyRet(ret)
	if err != nil {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		t.announce(logrus.ErrorLevel, "task got invalid rc", logrus.Fields{"ret": fmt.Sprintf("%#v", ret)})
		t.setRC(RCErrors)
		return
	}
	t.setRC(rc)
}

// classifyRet converts legacy return shapes into the rc set at the
// boundary: nil and bool collapse to okay, rc-bearing results are
// unwrapped, integers are used directly. Anything else is invalid.
func (t *Task) classifyRet(ret interface{}) (RC, error) {
	switch v := ret.(type) {
	case nil:
		t.announce(logrus.WarnLevel, "task got non-rc return, replacing", logrus.Fields{"ret": nil, "rc": RCOkay})
		return RCOkay, nil
	case bool:
		t.announce(logrus.WarnLevel, "task got non-rc return, replacing", logrus.Fields{"ret": v, "rc": RCOkay})
		return RCOkay, nil
	case ReturnCoder:
		return t.checkRC(v.RC())
	case RC:
		return t.checkRC(v)
	case int:
		return t.checkRC(RC(v))
	default:
		return RCOkay, &InvalidReturnError{Task: t.name, Value: ret}
	}
}

func (t *Task) checkRC(rc RC) (RC, error) {
	if !rc.Valid() {
		return RCOkay, &InvalidReturnError{Task: t.name, Value: rc}
	}
	return rc, nil
}

// setRC records the task's return code. The first recorded code wins, so a
// timeout classification is not overwritten when the killed function
// eventually returns.
func (t *Task) setRC(rc RC) {
	t.mu.Lock()
	if t.rcSet {
		t.mu.Unlock()
		return
	}
	t.rc = rc
	t.rcSet = true
	bad := rc != RCOkay
	if bad {
		t.gotBadRC = true
	}
	t.mu.Unlock()
	if bad {
		t.announce(logrus.ErrorLevel, "task got bad rc", logrus.Fields{"rc": rc})
	}
}

// markTimedOut classifies the task as timed out. Called by the manager
// while the task may still be running.
func (t *Task) markTimedOut() {
	t.setRC(RCTimeout)
}

// CheckTimeout reports whether the task has started and exceeded its
// effective timeout.
func (t *Task) CheckTimeout() bool {
	t.mu.Lock()
	if t.startTime.IsZero() {
		t.mu.Unlock()
		return false
	}
	start := t.startTime
	t.mu.Unlock()

	timeout := t.effectiveTimeout()
	if timeout <= 0 {
		return false
	}

	elapsed := time.Since(start)
	t.mu.Lock()
	if !t.finished {
		t.elapsed = elapsed
	}
	t.mu.Unlock()
	return elapsed > timeout
}

// effectiveTimeout is the task's own timeout, the manager's default when
// the task has none, or zero for no timeout at all.
func (t *Task) effectiveTimeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	t.mu.Lock()
	mgr := t.manager
	t.mu.Unlock()
	if mgr != nil {
		return mgr.cfg.DefaultTaskTimeout
	}
	return 0
}

// Kill requests best-effort cancellation: the task's context is cancelled
// and its kill callback (or the manager's default) is invoked. The task is
// not force-terminated by the framework itself.
func (t *Task) Kill() {
	t.mu.Lock()
	cancel := t.cancel
	mgr := t.manager
	cb := t.killCallback
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cb != nil {
		cb(t)
		return
	}
	if mgr != nil && mgr.cfg.DefaultKillCallback != nil {
		mgr.cfg.DefaultKillCallback(t)
	}
}

func (t *Task) announce(level logrus.Level, msg string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["task"] = t.name

	t.mu.Lock()
	mgr := t.manager
	trace := t.announceAsTrace
	t.mu.Unlock()

	log := logrus.StandardLogger()
	if mgr != nil {
		fields["manager"] = mgr.name
		log = mgr.cfg.Logger
		trace = trace || mgr.cfg.TasksAnnounceTrace
	}
	if trace {
		level = logrus.TraceLevel
	}

	t.mu.Lock()
	t.messages = append(t.messages, formatAnnouncement(msg, fields))
	t.mu.Unlock()

	log.WithFields(fields).Log(level, msg)
}

// String implements fmt.Stringer for log display.
func (t *Task) String() string {
	t.mu.Lock()
	mgr := t.manager
	t.mu.Unlock()
	if mgr != nil {
		return fmt.Sprintf("Task(name=%q manager=%q)", t.name, mgr.name)
	}
	return fmt.Sprintf("Task(name=%q)", t.name)
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatAnnouncement(msg string, fields logrus.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := msg
	for _, k := range keys {
		out += fmt.Sprintf(" %s=%v", k, fields[k])
	}
	return out
}
