// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test_Task_CoroutineChainSyncWait is scenario 3: task A awaits B awaits
// C; C returns 7. sync_wait_result(A) from an external thread returns 7.
func Test_Task_CoroutineChainSyncWait(t *testing.T) {
	sched, err := New(4)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 4, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	var startedOnA, resumedOnA WorkerID = InvalidWorkerID, InvalidWorkerID

	c := NewTask(sched, g, func(y *Yield) (any, error) {
		return 7, nil
	})
	b := NewTask(sched, g, func(y *Yield) (any, error) {
		return y.Await(c)
	})
	a := NewTask(sched, g, func(y *Yield) (any, error) {
		startedOnA = y.WorkerID()
		v, err := y.Await(b)
		resumedOnA = y.WorkerID()
		return v, err
	})

	v, err := SyncWaitResult(sched, a)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	// The task body runs on its own goroutine, started outside the pool
	// (startedOnA observes External); once resumed via a dispatched
	// continuation, it observes whichever worker happened to dequeue
	// that continuation, which need not be the same worker at all —
	// there may not even have been one, since A's own body never ran on
	// a pool worker in the first place.
	require.Equal(t, External, startedOnA)
	t.Logf("A resumed on worker %d after B completed", resumedOnA)
}

// Test_Task_EagerSequenceRunsImmediately checks that NewSequence does not
// return until its body has run to completion or its first suspension.
func Test_Task_EagerSequenceRunsImmediately(t *testing.T) {
	sched, err := New(2)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 2, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	seq := NewSequence(sched, g, func(y *Yield) (any, error) {
		return "done", nil
	})
	require.True(t, seq.IsDone())
	v, err := seq.Result()
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

// Test_Task_AwaiterReadyBeforeCompletion exercises the ready/suspend/
// resume contract directly, independent of Yield.
func Test_Task_AwaiterReadyBeforeCompletion(t *testing.T) {
	sched, err := New(1)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 1, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	gate := make(chan struct{})
	task := NewTask(sched, g, func(y *Yield) (any, error) {
		<-gate
		return 99, nil
	})

	aw := task.Awaiter()
	require.False(t, aw.Ready())

	var wg sync.WaitGroup
	wg.Add(1)
	installed := aw.Suspend(g, func(*Context) { wg.Done() })
	require.True(t, installed)

	task.Resume()
	close(gate)
	wg.Wait()

	require.True(t, aw.Ready())
	v, err := aw.Resume()
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

// Test_Scheduler_SyncWaitFromWorkerNoDeadlock is scenario 6: worker 0's
// task calls sync_wait_result on a task submitted to group containing
// worker 0; busy_work must keep it from deadlocking on itself.
func Test_Scheduler_SyncWaitFromWorkerNoDeadlock(t *testing.T) {
	sched, err := New(1)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 1, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	inner := NewTask(sched, g, func(y *Yield) (any, error) { return 42, nil })

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	require.NoError(t, sched.SubmitToWorker(0, PackClosure(g, func(ctx *Context) {
		// inner can only ever be dequeued by worker 0 -- the very worker
		// currently running this closure -- so a naive blocking wait
		// here would deadlock.
		if err := ctx.AsyncTask(g, inner); err != nil {
			errCh <- err
			return
		}
		v, err := ctx.SyncWaitResult(inner)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	})))

	select {
	case v := <-resultCh:
		require.Equal(t, 42, v)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("deadlocked waiting for sync_wait_result from worker 0")
	}
}
