// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
)

// workerState mirrors the created -> running -> draining -> stopped
// machine from §4.3. Transitions are monotonic; there is no path back to
// an earlier state within one begin/end-execution cycle.
type workerState int32

const (
	workerCreated workerState = iota
	workerRunning
	workerDraining
	workerStopped
)

// Worker is a single member of the scheduler's pool. In this
// implementation a worker is a goroutine optionally pinned to its own OS
// thread (see affinity_linux.go), standing in for the original's
// std::thread.
type Worker struct { // betteralign:ignore
	id    WorkerID
	sched *Scheduler

	// groups lists this worker's memberships, pre-sorted descending by
	// priority and ascending by group id: the exact dequeue walk order
	// required by §4.2.
	groups []WorkgroupID
	rings  map[WorkgroupID]*workItemRing

	// contexts is the dense [group] -> *Context cache described in
	// Design Notes §9: one cheap, reusable view per membership, built once
	// at BeginExecution instead of allocated per dispatch.
	contexts map[WorkgroupID]*Context

	spillMu sync.Mutex
	spill   []WorkItem

	sleeping atomic.Bool
	wake     chan struct{}

	state atomic.Int32
	done  chan struct{}
}

func newWorker(id WorkerID, sched *Scheduler) *Worker {
	return &Worker{
		id:       id,
		sched:    sched,
		rings:    make(map[WorkgroupID]*workItemRing),
		contexts: make(map[WorkgroupID]*Context),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (w *Worker) stateValue() workerState { return workerState(w.state.Load()) }

// submitLocal enqueues an item to this worker's inbox for item.Group(),
// spilling to the local deque under a short lock on ring-full. While the
// deque still holds spilled items, new items spill behind them rather than
// entering the ring, so a later item never overtakes an earlier spilled one.
func (w *Worker) submitLocal(item WorkItem) {
	w.spillMu.Lock()
	if len(w.spill) == 0 {
		w.spillMu.Unlock()
		ring := w.rings[item.Group()]
		if ring != nil && ring.Push(item) {
			w.signalWake()
			return
		}
		w.spillMu.Lock()
	}
	w.spill = append(w.spill, item)
	w.spillMu.Unlock()
	w.sched.reportSpill(w.id, item.Group())
	w.signalWake()
}

// signalWake wakes the worker iff it was observed sleeping. Spurious
// wakes (a racing wake alongside a self-initiated re-check) are tolerated.
func (w *Worker) signalWake() {
	if w.sleeping.Load() {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// run is the worker's main loop, spawned by Scheduler.BeginExecution.
func (w *Worker) run(entry func(*Context)) {
	defer close(w.done)

	w.pinAffinity()

	if entry != nil {
		entry(w.contexts[w.primaryGroup()])
	}

	w.state.Store(int32(workerRunning))

	for {
		if item, ok := w.tryDequeue(); ok {
			ctx := w.contexts[item.Group()]
			if ctx == nil {
				ctx = externalContext(w.sched)
			}
			item.invoke(ctx)
			continue
		}

		if w.sched.stop.Load() {
			w.state.Store(int32(workerDraining))
			if w.quiescent() {
				w.state.Store(int32(workerStopped))
				return
			}
			// Another worker's steal, or a fresh submission landing
			// between our emptiness check and now, may still produce
			// work; loop back around rather than sleeping, so we notice
			// it promptly during drain.
			runtime.Gosched()
			continue
		}

		w.sleepUntilWoken()
	}
}

// primaryGroup returns the lowest-id group this worker belongs to, used
// only to pick a context for the optional per-worker entry callback.
func (w *Worker) primaryGroup() WorkgroupID {
	if len(w.groups) == 0 {
		return InvalidWorkgroupID
	}
	p := w.groups[0]
	for _, g := range w.groups[1:] {
		if g < p {
			p = g
		}
	}
	return p
}

// tryDequeue implements the §4.2 dequeue policy: own rings in priority
// order, then the local spill deque, then one bounded steal attempt per
// group, in that order.
func (w *Worker) tryDequeue() (WorkItem, bool) {
	for _, g := range w.groups {
		if ring := w.rings[g]; ring != nil {
			if item, ok := ring.Pop(); ok {
				return item, true
			}
		}
	}

	if item, ok := w.popSpill(); ok {
		return item, true
	}

	for _, g := range w.groups {
		if item, ok := w.stealFrom(g); ok {
			return item, true
		}
	}

	return WorkItem{}, false
}

func (w *Worker) popSpill() (WorkItem, bool) {
	w.spillMu.Lock()
	defer w.spillMu.Unlock()
	if len(w.spill) == 0 {
		return WorkItem{}, false
	}
	item := w.spill[0]
	w.spill = w.spill[1:]
	return item, true
}

// stealFrom probes exactly one random other member of group g once. A
// steal takes the victim's oldest item for that group, same as a normal
// Pop. The owner and any number of thieves may pop the same ring at once;
// the ring's CAS-guarded head gives each of them a distinct slot.
func (w *Worker) stealFrom(g WorkgroupID) (WorkItem, bool) {
	members := w.sched.groupMembers(g)
	if len(members) <= 1 {
		w.sched.reportStealMiss(w.id, g)
		return WorkItem{}, false
	}

	i := rand.N(len(members)) //nolint:gosec
	if members[i] == w.id {
		i = (i + 1) % len(members)
	}
	victim := members[i]

	peer := w.sched.workers[victim]
	if peer == nil {
		return WorkItem{}, false
	}
	ring := peer.rings[g]
	if ring == nil {
		return WorkItem{}, false
	}

	item, ok := ring.Pop()
	if !ok {
		w.sched.reportStealMiss(w.id, g)
	}
	return item, ok
}

// quiescent reports whether stop has been observed and no inbox, spill
// deque, or steal target belonging to this worker's groups has pending
// work. It is re-evaluated every time the worker would otherwise block,
// per §4.3.
//
// Memory ordering: stop is an atomic.Bool observed with acquire semantics
// (sync/atomic's default), and every ring and spill deque this check reads
// uses its own acquire-paired load; there is no single combined fence, but
// since every producer path (submitLocal, ring Push) issues a release
// store before the consumer-visible state changes, a false "empty" read
// here can only be transient and is always corrected by the check being
// re-run before the worker actually blocks.
func (w *Worker) quiescent() bool {
	if !w.sched.stop.Load() {
		return false
	}
	for _, g := range w.groups {
		if ring := w.rings[g]; ring != nil && !ring.IsEmpty() {
			return false
		}
	}
	w.spillMu.Lock()
	spillEmpty := len(w.spill) == 0
	w.spillMu.Unlock()
	if !spillEmpty {
		return false
	}
	for _, g := range w.groups {
		for _, peer := range w.sched.groupMembers(g) {
			if peer == w.id {
				continue
			}
			if other := w.sched.workers[peer]; other != nil {
				if ring := other.rings[g]; ring != nil && !ring.IsEmpty() {
					return false
				}
			}
		}
	}
	return true
}

func (w *Worker) sleepUntilWoken() {
	w.sleeping.Store(true)
	// Re-check after announcing sleeping, closing the race where a
	// submitter's signalWake fired between our last failed dequeue and
	// the sleeping flag becoming visible.
	if item, ok := w.tryDequeue(); ok {
		w.sleeping.Store(false)
		ctx := w.contexts[item.Group()]
		if ctx == nil {
			ctx = externalContext(w.sched)
		}
		item.invoke(ctx)
		return
	}
	if w.sched.stop.Load() && w.quiescent() {
		w.sleeping.Store(false)
		return
	}
	<-w.wake
	w.sleeping.Store(false)
}

// runOnce performs a single dequeue-and-invoke cycle without blocking,
// backing Scheduler.BusyWork. It returns false if no work was available.
func (w *Worker) runOnce() bool {
	item, ok := w.tryDequeue()
	if !ok {
		return false
	}
	ctx := w.contexts[item.Group()]
	if ctx == nil {
		ctx = externalContext(w.sched)
	}
	item.invoke(ctx)
	return true
}
