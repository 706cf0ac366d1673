package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyTasksRequiresAllDependenciesTerminal(t *testing.T) {
	m := NewManager()
	a := m.CreateTask("fetch X")
	b := m.CreateTask("summarize X", a)

	assert.ElementsMatch(t, []string{a}, m.ReadyTasks())

	completed := StatusCompleted
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &completed}))

	assert.ElementsMatch(t, []string{b}, m.ReadyTasks())
}

func TestFailedSoftDependencyDoesNotBlock(t *testing.T) {
	m := NewManager()
	a := m.CreateTask("risky step")
	b := m.CreateTask("dependent step", a)

	failed := StatusFailed
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &failed}))

	assert.ElementsMatch(t, []string{b}, m.ReadyTasks())
}

func TestHardDependencyFailureBlocksDependent(t *testing.T) {
	m := NewManager()
	a := m.CreateTaskWithDeps("risky step", nil)
	b := m.CreateTaskWithDeps("dependent step", []Dependency{{TaskID: a, Hard: true}})

	failed := StatusFailed
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &failed}))

	assert.Empty(t, m.ReadyTasks())
	task, ok := m.Get(b)
	require.True(t, ok)
	assert.Equal(t, StatusPending, task.Status)
}

func TestStartTimeBeforeEndTime(t *testing.T) {
	m := NewManager()
	a := m.CreateTask("step")

	inProgress := StatusInProgress
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &inProgress}))
	completed := StatusCompleted
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &completed}))

	got, ok := m.Get(a)
	require.True(t, ok)
	require.NotNil(t, got.StartTime)
	require.NotNil(t, got.EndTime)
	assert.True(t, !got.StartTime.After(*got.EndTime))
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := NewManager()
	a := m.CreateTask("first")
	m.CreateTask("second", a)

	snap := m.ToSnapshot()

	restored := NewManager()
	restored.FromSnapshot(snap)

	assert.Equal(t, m.All(), restored.All())
	assert.Equal(t, m.ReadyTasks(), restored.ReadyTasks())
}

func TestAllDone(t *testing.T) {
	m := NewManager()
	a := m.CreateTask("only task")
	assert.False(t, m.AllDone())

	completed := StatusCompleted
	require.NoError(t, m.UpdateTask(a, TaskUpdate{Status: &completed}))
	assert.True(t, m.AllDone())
}
