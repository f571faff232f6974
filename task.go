// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is a suspendable task body. It receives a Yield handle used to
// await other tasks, and returns the task's published result.
//
// The body runs on a dedicated goroutine rather than on a pool worker's
// own goroutine: Await parks that goroutine on a channel instead of
// blocking a worker thread, so a suspended task never occupies a pool
// slot. Resumption happens when some worker later dequeues and invokes
// the installed continuation, which wakes the parked goroutine and
// updates the Yield's observed worker id — per the scenario in §8 that
// the worker running a task after a suspension may differ from the one
// that started it.
type TaskFunc func(y *Yield) (any, error)

// cellState drives the single-CAS race between installing a continuation
// (an awaiter arriving first) and publishing a result (the task body
// finishing first). Whichever call loses its CAS is the one responsible
// for acting: a losing install reads the already-published result
// directly; a losing publish reads the already-installed continuation and
// resubmits it.
type cellState uint32

const (
	cellEmpty cellState = iota
	cellAwaiting
	cellCompleted
)

var taskAddressSeq atomic.Uint64

// Task is a suspendable unit of work: a coroutine-like handle whose body
// may Await other tasks and whose completion may resume an installed
// continuation. A Task is uniquely owned by its creator until awaited, at
// which point responsibility for resuming it passes to the awaiter's
// continuation machinery; it must run to completion once started.
type Task struct { // betteralign:ignore
	sched *Scheduler
	group WorkgroupID
	fn    TaskFunc
	eager bool

	address uint64

	startOnce sync.Once

	cell atomic.Uint32 // cellState
	cont WorkItem

	done   atomic.Bool
	result any
	err    error

	eagerOnce  sync.Once
	eagerReady chan struct{}
}

func newTask(sched *Scheduler, group WorkgroupID, fn TaskFunc, eager bool) *Task {
	return &Task{
		sched:      sched,
		group:      group,
		fn:         fn,
		eager:      eager,
		address:    taskAddressSeq.Add(1),
		eagerReady: make(chan struct{}),
	}
}

// NewTask constructs a deferred task ("co_task"): its body never runs
// until Resume, AsyncTask, a Yield.Await of this task, or SyncWaitResult
// triggers its first execution. An Awaiter().Suspend call alone does not
// start it.
func NewTask(sched *Scheduler, group WorkgroupID, fn TaskFunc) *Task {
	return newTask(sched, group, fn, false)
}

// NewSequence constructs an eager task ("co_sequence"): its body begins
// running immediately, on a dedicated goroutine, and NewSequence does not
// return until that body either finishes or reaches its first suspension
// point — matching "runs to its first suspension point immediately on
// the constructing thread" in a language without native stackful
// coroutines.
func NewSequence(sched *Scheduler, group WorkgroupID, fn TaskFunc) *Task {
	t := newTask(sched, group, fn, true)
	t.ensureStarted()
	<-t.eagerReady
	return t
}

// Address returns an opaque, process-unique handle for this task,
// standing in for the original's coroutine-handle address.
func (t *Task) Address() uint64 { return t.address }

// IsDone reports whether the task's body has returned and its result has
// been published.
func (t *Task) IsDone() bool { return t.done.Load() }

// Result returns the task's published result. Calling it before IsDone
// is true returns the zero value and nil error; callers that need to
// block for completion should use Await (from within another task) or
// SyncWaitResult (from an external thread, or a worker willing to spin).
func (t *Task) Result() (any, error) { return t.result, t.err }

// Resume starts a deferred task's body if it has not already started.
// It is a no-op for a task that has already been started, including an
// eager sequence, which starts at construction.
func (t *Task) Resume() { t.ensureStarted() }

func (t *Task) ensureStarted() {
	t.startOnce.Do(func() { go t.runBody() })
}

func (t *Task) runBody() {
	y := &Yield{task: t, worker: External}
	result, err := t.fn(y)
	t.publish(result, err)
	if t.eager {
		t.eagerOnce.Do(func() { close(t.eagerReady) })
	}
}

// publish stores the task's result and resolves the completion/continuation
// race: if an awaiter had already installed a continuation, this call is
// the one that resubmits it, reading a value its counterpart's successful
// CAS already made visible. Storing result/err before the CAS guarantees
// invariant (3): publication happens-before the continuation observes it.
func (t *Task) publish(result any, err error) {
	t.result = result
	t.err = err
	t.done.Store(true)
	if !t.cell.CompareAndSwap(uint32(cellEmpty), uint32(cellCompleted)) {
		t.runContinuation()
	}
}

func (t *Task) runContinuation() {
	cont := t.cont
	if !cont.valid() {
		return
	}
	if !cont.Group().Valid() {
		// A continuation with no workgroup is a bare completion signal (the
		// sync-wait bridge's case), not schedulable work; run it inline
		// rather than round-tripping through the pool.
		cont.invoke(externalContext(t.sched))
		return
	}
	if err := t.sched.submitContinuation(cont); err != nil {
		t.sched.logger().Log(LogEntry{
			Level: LevelError, Category: "task", Workgroup: cont.Group(),
			Message: "failed to resubmit continuation", Err: err,
		})
	}
}

// Awaiter returns the ready/suspend/resume view of this task described by
// §4.5's awaiter contract.
func (t *Task) Awaiter() Awaiter { return Awaiter{task: t} }

// Awaiter is the ready/suspend/resume view onto a Task that a coroutine
// runtime's generated code would drive. Yield.Await builds on exactly
// this surface; it is exported for callers wiring their own suspension
// points on top of a Task.
type Awaiter struct {
	task *Task
}

// Ready returns true iff the awaited task is complete.
func (a Awaiter) Ready() bool { return a.task.IsDone() }

// Suspend installs onResume, wrapped as a work-item tagged with group, as
// the task's continuation, and returns true if installation won the race
// (the caller should now return control to the scheduler/park). It
// returns false if the task completed before installation could land, in
// which case onResume is never called and the caller should proceed
// straight to Resume.
//
// At most one Suspend call may win per task: a second concurrent
// Suspend on the same task is a caller error per the "at most one
// continuation" invariant and its outcome is unspecified.
func (a Awaiter) Suspend(group WorkgroupID, onResume func(*Context)) bool {
	a.task.cont = packResume(group, onResume)
	if !a.task.cell.CompareAndSwap(uint32(cellEmpty), uint32(cellAwaiting)) {
		return false
	}
	return true
}

// Resume returns the task's stored result, once Ready (or once Suspend
// has returned and the continuation has since run).
func (a Awaiter) Resume() (any, error) { return a.task.Result() }

// Yield is the handle a running TaskFunc uses to suspend awaiting another
// task's completion.
type Yield struct {
	task   *Task
	worker WorkerID
}

// WorkerID returns the worker that most recently resumed this task's
// body, or External if it has not yet been resumed after a suspension.
func (y *Yield) WorkerID() WorkerID { return y.worker }

// Await suspends the calling task's body goroutine until dep completes,
// then returns dep's published result. If dep is already complete, it
// returns immediately without suspending.
func (y *Yield) Await(dep *Task) (any, error) {
	dep.ensureStarted()

	aw := dep.Awaiter()
	if aw.Ready() {
		return aw.Resume()
	}

	resumeCh := make(chan struct{})
	installed := aw.Suspend(y.task.group, func(ctx *Context) {
		y.worker = ctx.WorkerID()
		close(resumeCh)
	})
	if !installed {
		return aw.Resume()
	}

	y.task.signalEagerSuspend()
	<-resumeCh
	return aw.Resume()
}

func (t *Task) signalEagerSuspend() {
	if t.eager {
		t.eagerOnce.Do(func() { close(t.eagerReady) })
	}
}

// SyncWaitResult blocks the calling goroutine until task completes and
// returns its result. It is the bridge described in §4.5 for callers
// outside the coroutine machinery entirely: an external application
// goroutine that never runs inside the scheduler's worker pool.
func SyncWaitResult(sched *Scheduler, task *Task) (any, error) {
	return syncWaitResult(sched, task, External)
}

// SyncWaitResult blocks the calling worker's dispatched work-item until
// task completes, interleaving busy_work on this worker's own queue so a
// task targeting this worker's own group can still make progress —
// avoiding the self-deadlock a plain blocking wait would risk (§8
// scenario 6).
func (c *Context) SyncWaitResult(task *Task) (any, error) {
	return syncWaitResult(c.sched, task, c.worker)
}

// busyWaitPoll bounds how long syncWaitResult sleeps between BusyWork
// attempts when a worker-bound wait finds nothing to do; short enough to
// stay responsive, long enough not to burn a core spinning.
const busyWaitPoll = 50 * time.Microsecond

func syncWaitResult(sched *Scheduler, task *Task, worker WorkerID) (any, error) {
	task.ensureStarted()

	aw := task.Awaiter()
	if aw.Ready() {
		return aw.Resume()
	}

	signal := make(chan struct{})
	installed := aw.Suspend(InvalidWorkgroupID, func(*Context) { close(signal) })
	if !installed {
		return aw.Resume()
	}

	if !worker.Valid() {
		<-signal
		return aw.Resume()
	}

	timer := time.NewTimer(busyWaitPoll)
	defer timer.Stop()
	for {
		select {
		case <-signal:
			return aw.Resume()
		default:
		}

		ok, err := sched.BusyWork(worker)
		if err != nil {
			<-signal
			return aw.Resume()
		}
		if ok {
			continue
		}

		timer.Reset(busyWaitPoll)
		select {
		case <-signal:
			return aw.Resume()
		case <-timer.C:
		}
	}
}
