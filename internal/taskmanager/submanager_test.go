package taskmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubManagerRunsAsSingleTask(t *testing.T) {
	sub := NewSubManager("inner", testConfig())
	require.NoError(t, sub.AddTask(rcTask("s1", RCOkay)))
	require.NoError(t, sub.AddTask(rcTask("s2", RCOkay, "s1")))

	parent := NewManager("outer", testConfig())
	require.NoError(t, parent.AddTask(rcTask("prep", RCOkay)))
	require.NoError(t, parent.AddTask(NewSubManagerTask("inner", sub, WithReqs("prep"))))
	after := rcTask("after", RCOkay, "inner")
	require.NoError(t, parent.AddTask(after))

	rc, err := parent.Go()
	require.NoError(t, err)
	assert.Equal(t, RCOkay, rc)
	assert.True(t, sub.Finished())
	assert.True(t, after.WasRun())

	inner, ok := parent.Get("inner")
	require.True(t, ok)
	innerRC, ok := inner.ReturnCode()
	require.True(t, ok)
	assert.Equal(t, RCOkay, innerRC)
}

func TestSubManagerWorstRCPropagatesToParent(t *testing.T) {
	sub := NewSubManager("inner", testConfig())
	require.NoError(t, sub.AddTask(rcTask("good", RCOkay)))
	require.NoError(t, sub.AddTask(rcTask("bad", RCFailure, "good")))

	parent := NewManager("outer", testConfig())
	require.NoError(t, parent.AddTask(NewSubManagerTask("inner", sub)))
	blocked := rcTask("blocked", RCOkay, "inner")
	require.NoError(t, parent.AddTask(blocked))

	rc, err := parent.Go()
	require.NoError(t, err)
	assert.Equal(t, RCFailure, rc)
	assert.False(t, blocked.WasRun())
}

func TestParentHaltCascadesToSubManager(t *testing.T) {
	sub := NewSubManager("inner", testConfig())
	s1 := sleepTask("s1", 60*time.Millisecond)
	s2 := sleepTask("s2", 60*time.Millisecond, WithReqs("s1"))
	s3 := rcTask("s3", RCOkay, "s2")
	require.NoError(t, sub.AddTask(s1))
	require.NoError(t, sub.AddTask(s2))
	require.NoError(t, sub.AddTask(s3))

	parent := NewManager("outer", testConfig())
	boom := NewTask("boom", func(ctx context.Context, _ *SharedContext) (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		return RCFailure, nil
	})
	require.NoError(t, parent.AddTask(boom))
	subTask := NewSubManagerTask("inner", sub)
	require.NoError(t, parent.AddTask(subTask))

	rc, err := parent.Go()
	require.NoError(t, err)
	assert.Equal(t, RCFailure, rc)

	// The sub-manager notices the parent stopped and halts mid-graph.
	require.Eventually(t, sub.Finished, 2*time.Second, time.Millisecond)
	require.Eventually(t, subTask.Finished, 2*time.Second, time.Millisecond)
	assert.False(t, s3.WasRun())

	// Let the in-flight sleeper drain before the test exits.
	require.Eventually(t, s1.Finished, 2*time.Second, time.Millisecond)
}

func TestSubManagerAttachedOnAddTask(t *testing.T) {
	sub := NewSubManager("inner", testConfig())
	parent := NewManager("outer", testConfig())
	require.NoError(t, parent.AddTask(NewSubManagerTask("inner", sub)))

	sub.mu.Lock()
	attached := sub.parent
	sub.mu.Unlock()
	assert.Same(t, parent, attached)
}
