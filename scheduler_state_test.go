// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Scheduler_CreateGroup_OutOfRange(t *testing.T) {
	sched, err := New(4)
	require.NoError(t, err)

	_, err = sched.CreateGroup(Workgroup{StartThreadIdx: 2, ThreadCount: 10, Priority: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfRange))

	var rangeErr *RangeError
	require.True(t, errors.As(err, &rangeErr))
	require.Equal(t, uint32(4), rangeErr.WorkerCount)
}

func Test_Scheduler_CreateGroup_FrozenWhileRunning(t *testing.T) {
	sched, err := New(2)
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	_, err = sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 2, Priority: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidState))
}

func Test_Scheduler_BeginExecution_TwiceFails(t *testing.T) {
	sched, err := New(1)
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	err = sched.BeginExecution()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidState))
}

func Test_Scheduler_EndExecution_WithoutBeginFails(t *testing.T) {
	sched, err := New(1)
	require.NoError(t, err)

	err = sched.EndExecution()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidState))
}

func Test_Scheduler_GetLogicalDivisor(t *testing.T) {
	sched, err := New(8)
	require.NoError(t, err)

	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 4, Priority: 1})
	require.NoError(t, err)
	div, err := sched.GetLogicalDivisor(g)
	require.NoError(t, err)
	require.EqualValues(t, 4*defaultWorkScale, div)

	g2, err := sched.CreateGroup(Workgroup{StartThreadIdx: 4, ThreadCount: 4, Priority: 1, WorkScale: 2})
	require.NoError(t, err)
	div2, err := sched.GetLogicalDivisor(g2)
	require.NoError(t, err)
	require.EqualValues(t, 8, div2)

	_, err = sched.GetLogicalDivisor(WorkgroupID(999))
	require.True(t, errors.Is(err, ErrUnknownGroup))
}

func Test_Scheduler_GetContext(t *testing.T) {
	sched, err := New(2)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 2, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	ctx, err := sched.GetContext(0, g)
	require.NoError(t, err)
	require.Equal(t, WorkerID(0), ctx.WorkerID())
	require.Equal(t, g, ctx.WorkgroupID())

	_, err = sched.GetContext(0, WorkgroupID(999))
	require.True(t, errors.Is(err, ErrUnknownGroup))

	_, err = sched.GetContext(WorkerID(99), g)
	require.True(t, errors.Is(err, ErrUnknownWorker))
}

func Test_Scheduler_SubmissionToUnknownWorkerOrGroup(t *testing.T) {
	sched, err := New(2)
	require.NoError(t, err)
	g, err := sched.CreateGroup(Workgroup{StartThreadIdx: 0, ThreadCount: 2, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, sched.BeginExecution())
	defer func() { require.NoError(t, sched.EndExecution()) }()

	err = sched.SubmitExternal(PackClosure(WorkgroupID(999), func(*Context) {}))
	require.True(t, errors.Is(err, ErrUnknownGroup))

	err = sched.SubmitToWorker(WorkerID(99), PackClosure(g, func(*Context) {}))
	require.True(t, errors.Is(err, ErrUnknownWorker))
}
