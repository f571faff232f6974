// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

// Context is the cheap, copy-light view passed into every work-item
// invocation: a reference to the owning scheduler, the worker executing it,
// the workgroup the item was dequeued under, and the caller-supplied
// user context.
type Context struct {
	sched *Scheduler
	worker WorkerID
	group  WorkgroupID
	user   any
}

// Scheduler returns the scheduler this context belongs to.
func (c *Context) Scheduler() *Scheduler { return c.sched }

// WorkerID returns the worker this context is currently executing on.
func (c *Context) WorkerID() WorkerID { return c.worker }

// WorkgroupID returns the workgroup under which the current item was
// dequeued.
func (c *Context) WorkgroupID() WorkgroupID { return c.group }

// UserContext returns the opaque value installed at BeginExecution.
func (c *Context) UserContext() any { return c.user }

// Alloc returns scratch memory from the scheduler's configured Allocator,
// for a work-item or task body that wants to avoid Go's allocator on a hot
// path. Falls back to a plain make if the Allocator returns nil.
func (c *Context) Alloc(size int) []byte {
	if buf := c.sched.allocator.Alloc(size); buf != nil {
		return buf
	}
	return make([]byte, size)
}

// Free returns buf, previously obtained from Alloc, to the scheduler's
// configured Allocator.
func (c *Context) Free(buf []byte) { c.sched.allocator.Free(buf) }

// externalContext builds a Context for use by non-worker callers, e.g. the
// sync-wait bridge driving BusyWork from an application goroutine.
func externalContext(s *Scheduler) *Context {
	return &Context{sched: s, worker: External, group: InvalidWorkgroupID, user: s.userContext}
}
