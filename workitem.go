// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

// maxInlineArgs bounds the bound-argument submission form (PackFunc). The
// C++ original rejects closures larger than a fixed inline buffer at
// compile time; Go closures don't have that problem (everything captured
// is already heap-allocated by escape analysis when it needs to be), but
// the bound-argument form specifically exists to let callers avoid an
// allocation for the common "function pointer + a handful of values" case,
// so it keeps the same small, fixed capacity and the same error path.
const maxInlineArgs = 4

// WorkItemKind tags how a WorkItem's payload should be invoked. It carries
// no behavior of its own: invoke always just calls fn. It exists so the
// scheduler's internals and diagnostics can report what kind of submission
// produced a given item without inspecting the closure.
type WorkItemKind uint8

const (
	// KindClosure is a submission via a plain closure.
	KindClosure WorkItemKind = iota
	// KindBoundFunc is a submission via a function pointer plus bound
	// arguments (PackFunc).
	KindBoundFunc
	// KindCoroutineResume is a submission that resumes a suspended Task.
	KindCoroutineResume
)

// WorkItem is an opaque, movable unit of work: a tagged payload plus the
// workgroup it is destined for. Exactly one worker invokes any given
// WorkItem; after invoke runs, the item's state is considered consumed and
// must not be reused.
type WorkItem struct {
	kind  WorkItemKind
	group WorkgroupID
	fn    func(*Context)
}

// Group returns the workgroup this item is tagged with.
func (w WorkItem) Group() WorkgroupID { return w.group }

// Kind reports how this item was constructed.
func (w WorkItem) Kind() WorkItemKind { return w.kind }

// valid reports whether the item carries an invocable payload.
func (w WorkItem) valid() bool { return w.fn != nil }

// invoke runs the item's payload against ctx. A fault escaping the payload
// is a programming error; per the fatal-error policy, the caller does not
// attempt to recover it.
func (w WorkItem) invoke(ctx *Context) { w.fn(ctx) }

// PackClosure wraps a plain closure as a WorkItem targeting group.
func PackClosure(group WorkgroupID, fn func(*Context)) WorkItem {
	return WorkItem{kind: KindClosure, group: group, fn: fn}
}

// PackFunc wraps a function pointer with up to maxInlineArgs bound
// arguments as a WorkItem targeting group. Submissions that need more
// arguments than that should box them into a closure with PackClosure
// instead; PackFunc returns ErrSubmissionTooLarge for those.
func PackFunc(group WorkgroupID, fn func(*Context, ...any), args ...any) (WorkItem, error) {
	if len(args) > maxInlineArgs {
		return WorkItem{}, &SubmissionTooLargeError{ArgCount: len(args), MaxArgs: maxInlineArgs}
	}
	bound := append([]any(nil), args...)
	return WorkItem{
		kind:  KindBoundFunc,
		group: group,
		fn: func(ctx *Context) {
			fn(ctx, bound...)
		},
	}, nil
}

// packResume wraps a coroutine-handle resumption: invoking it runs exactly
// one step of the task machinery (start the body, or deliver a completed
// dependency's result to a suspended awaiter) per §4.1's "pair (coroutine
// handle address, group id)" payload shape.
func packResume(group WorkgroupID, fn func(*Context)) WorkItem {
	return WorkItem{kind: KindCoroutineResume, group: group, fn: fn}
}
