// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

// Async is the uniform submission surface described in §4.6: every
// accepted form is packed into a WorkItem via the helpers in workitem.go
// and dispatched through Submit's normal round-robin path. sourceID
// identifies the submitter for stride purposes, exactly as Submit's does;
// callers submitting from within a worker should use Context.Async
// instead, which supplies it automatically.
func Async(sched *Scheduler, sourceID uint64, group WorkgroupID, fn func(*Context)) error {
	return sched.Submit(PackClosure(group, fn), sourceID)
}

// AsyncArgs submits a free-function-plus-bound-arguments form, the
// language-neutral equivalent of the original's free-function-pointer
// overload.
func AsyncArgs(sched *Scheduler, sourceID uint64, group WorkgroupID, fn func(*Context, ...any), args ...any) error {
	item, err := PackFunc(group, fn, args...)
	if err != nil {
		return err
	}
	return sched.Submit(item, sourceID)
}

// AsyncMethod submits a bound-method form: recv is captured by the
// closure exactly as the original's pointer-to-member-plus-object-reference
// overload captures its receiver.
func AsyncMethod[T any](sched *Scheduler, sourceID uint64, group WorkgroupID, recv T, method func(T, *Context)) error {
	return sched.Submit(PackClosure(group, func(ctx *Context) { method(recv, ctx) }), sourceID)
}

// AsyncTask submits a coroutine task's start as work: when a worker
// dequeues this item, the task's body is started (if not already started)
// on its own goroutine. This differs from Task.Resume, which starts the
// body immediately rather than waiting for a worker to carry the start —
// AsyncTask exists for callers that specifically want the task's start
// to be ordered with respect to other submissions on the same group.
func AsyncTask(sched *Scheduler, sourceID uint64, group WorkgroupID, task *Task) error {
	return sched.Submit(packResume(group, func(*Context) { task.ensureStarted() }), sourceID)
}

// Async submits a plain closure from within a running work-item body,
// using the executing worker's id as the submitter identity.
func (c *Context) Async(group WorkgroupID, fn func(*Context)) error {
	return c.Submit(PackClosure(group, fn))
}

// AsyncArgs submits a free-function-plus-bound-arguments form from within
// a running work-item body.
func (c *Context) AsyncArgs(group WorkgroupID, fn func(*Context, ...any), args ...any) error {
	item, err := PackFunc(group, fn, args...)
	if err != nil {
		return err
	}
	return c.Submit(item)
}

// AsyncTask submits a coroutine task's start from within a running
// work-item body.
func (c *Context) AsyncTask(group WorkgroupID, task *Task) error {
	return c.Submit(packResume(group, func(*Context) { task.ensureStarted() }))
}
