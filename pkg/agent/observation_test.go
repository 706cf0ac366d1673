package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/task"
)

func TestObservationReturnsIncompleteTaskToPending(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("work on something")

	taskID := sess.Tasks.CreateTask("a subtask")
	inProgress := task.StatusInProgress
	require.NoError(t, sess.Tasks.UpdateTask(taskID, task.TaskUpdate{Status: &inProgress}))
	sess.AuditStatus().Set("current_task_id", taskID)

	o := agent.NewObservation(agent.Config{})
	err := o.OnFinal(context.Background(), sess, "still working on it\nSTATUS: INCOMPLETE", nil)
	require.NoError(t, err)

	tk, ok := sess.Tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, tk.Status)

	complete, _ := sess.AuditStatus().Get("observation_complete")
	assert.Equal(t, false, complete)

	ready := sess.Tasks.ReadyTasks()
	assert.Contains(t, ready, taskID)
}

func TestObservationMarksCompletedTaskTerminal(t *testing.T) {
	sess := newTestSession(t)
	taskID := sess.Tasks.CreateTask("a subtask")
	inProgress := task.StatusInProgress
	require.NoError(t, sess.Tasks.UpdateTask(taskID, task.TaskUpdate{Status: &inProgress}))
	sess.AuditStatus().Set("current_task_id", taskID)

	o := agent.NewObservation(agent.Config{})
	err := o.OnFinal(context.Background(), sess, "all done\nSTATUS: COMPLETE", nil)
	require.NoError(t, err)

	tk, ok := sess.Tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, tk.Status)

	complete, _ := sess.AuditStatus().Get("observation_complete")
	assert.Equal(t, true, complete)
}
