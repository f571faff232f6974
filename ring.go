// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"runtime"
	"sync/atomic"
)

const (
	// sizeOfCacheLine is used to pad hot atomic fields apart, so false
	// sharing between the producer (tail) and consumer (head) sides of a
	// ring does not serialize otherwise-independent cache lines.
	sizeOfCacheLine = 128

	// ringSeqSkip is the sentinel "empty slot" sequence value. It sits far
	// from any sequence number a long-lived ring will actually reach,
	// avoiding ambiguity with legitimate wrap-around to zero.
	ringSeqSkip = uint64(1) << 63
)

// workItemRing is a bounded MPMC ring: any number of submitters may Push
// concurrently, and Pop is called by the worker that owns the (worker,
// workgroup) inbox this ring backs, but §4.2's bounded work-stealing also
// lets other member workers call Pop concurrently as thieves. Pop
// therefore CASes the head the same way Push CASes the tail, rather than
// assuming single-consumer ownership.
//
// Capacity is fixed at construction (thread_count * work_scale for the
// owning workgroup). On overflow, Push returns false and the caller is
// expected to spill to the worker's local deque.
type workItemRing struct { // betteralign:ignore
	_      [sizeOfCacheLine]byte
	buf    []WorkItem
	valid  []atomic.Bool
	seq    []atomic.Uint64
	head   atomic.Uint64
	_      [sizeOfCacheLine - 8]byte
	tail   atomic.Uint64
	tailSeq atomic.Uint64
	cap    uint64
}

// newWorkItemRing allocates a ring of the given capacity. Capacity must be
// at least 1.
func newWorkItemRing(capacity uint32) *workItemRing {
	if capacity == 0 {
		capacity = 1
	}
	r := &workItemRing{
		buf:   make([]WorkItem, capacity),
		valid: make([]atomic.Bool, capacity),
		seq:   make([]atomic.Uint64, capacity),
		cap:   uint64(capacity),
	}
	for i := range r.seq {
		r.seq[i].Store(ringSeqSkip)
	}
	return r
}

// Push attempts a lock-free enqueue. Returns false if the ring is full.
func (r *workItemRing) Push(item WorkItem) bool {
	for {
		tail := r.tail.Load()
		head := r.head.Load()

		if tail-head >= r.cap {
			return false
		}

		if r.tail.CompareAndSwap(tail, tail+1) {
			seq := r.tailSeq.Add(1)
			idx := tail % r.cap

			// Release ordering: data, then validity, then sequence. A
			// consumer that observes the sequence via Load (Acquire) is
			// guaranteed to observe the data and validity writes too.
			r.buf[idx] = item
			r.valid[idx].Store(true)
			r.seq[idx].Store(seq)
			return true
		}
	}
}

// Pop removes and returns the oldest item. ok is false if the ring is
// empty. The owning worker and concurrent thieves may call it at once
// (see the MPMC note above): the head advance is CAS-guarded,
// so a losing racer simply re-reads and retries against whatever slot is
// now oldest, rather than duplicating or skipping a delivery.
func (r *workItemRing) Pop() (item WorkItem, ok bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head >= tail {
			return WorkItem{}, false
		}

		idx := head % r.cap
		seq := r.seq[idx].Load()

		if seq == ringSeqSkip || !r.valid[idx].Load() {
			// Producer claimed the slot but hasn't published yet; spin.
			runtime.Gosched()
			continue
		}

		item = r.buf[idx]
		if !r.head.CompareAndSwap(head, head+1) {
			// Another consumer (the owner or a thief) already claimed this
			// slot; retry against the new head rather than this stale copy.
			continue
		}

		r.buf[idx] = WorkItem{}
		r.valid[idx].Store(false)
		r.seq[idx].Store(ringSeqSkip)
		return item, true
	}
}

// Len returns a racy snapshot of the number of items currently enqueued.
func (r *workItemRing) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// IsEmpty is a convenience wrapper around Len, documented separately
// because callers in the quiescence check treat "probably empty" as a
// meaningfully different question from "exact count".
func (r *workItemRing) IsEmpty() bool { return r.Len() == 0 }
