package taskmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatManagerAllTasksFirstWave(t *testing.T) {
	m, err := NewFlatManager("flat", testConfig(),
		rcTask("a", RCOkay), rcTask("b", RCOkay), rcTask("c", RCOkay))
	require.NoError(t, err)
	require.NoError(t, m.prepare())
	assert.Equal(t, []string{"a", "b", "c"}, m.ReadyTasks())

	rc, err := m.Go()
	require.NoError(t, err)
	assert.Equal(t, RCOkay, rc)
}

func TestFlatManagerRejectsRequirements(t *testing.T) {
	_, err := NewFlatManager("flat", testConfig(), rcTask("a", RCOkay, "ghost"))
	assert.Error(t, err)
}

func TestSerializedManagerChains(t *testing.T) {
	a := sleepTask("a", 5*time.Millisecond)
	b := sleepTask("b", 5*time.Millisecond)
	c := sleepTask("c", 5*time.Millisecond)
	m, err := NewSerializedManager("chain", testConfig(), a, b, c)
	require.NoError(t, err)

	assert.Empty(t, a.Reqs())
	assert.Equal(t, []string{"a"}, b.Reqs())
	assert.Equal(t, []string{"b"}, c.Reqs())

	rc, err := m.Go()
	require.NoError(t, err)
	assert.Equal(t, RCOkay, rc)
	assert.False(t, b.StartTime().Before(a.EndTime()))
	assert.False(t, c.StartTime().Before(b.EndTime()))
}

func TestSerializedManagerRejectsExplicitRequirements(t *testing.T) {
	_, err := NewSerializedManager("chain", testConfig(), rcTask("a", RCOkay, "b"))
	assert.Error(t, err)
}

func TestSimpleTaskListNames(t *testing.T) {
	fn := func(ctx context.Context, _ *SharedContext) (interface{}, error) { return 0, nil }
	tasks := SimpleTaskList("step", fn, fn, fn)
	require.Len(t, tasks, 3)
	assert.Equal(t, "1_step", tasks[0].Name())
	assert.Equal(t, "2_step", tasks[1].Name())
	assert.Equal(t, "3_step", tasks[2].Name())
}

func TestValidators(t *testing.T) {
	assert.Equal(t, RCOkay, ValidateNotNil("anything"))
	assert.Equal(t, RCFailure, ValidateNotNil(nil))

	assert.Equal(t, RCOkay, ValidateTruthy(true))
	assert.Equal(t, RCFailure, ValidateTruthy(false))
	assert.Equal(t, RCFailure, ValidateTruthy("yes"))
}
