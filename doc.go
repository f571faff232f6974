// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package scheduler implements a fixed-size pool of worker goroutines that
// execute units of work submitted by clients, grouped into priority-ranked
// workgroups pinned to contiguous worker ranges.
//
// A submitter targets either a workgroup (load-balanced across its member
// workers) or a single worker (exclusive dispatch, for thread-affinity
// requirements). A Task is a first-class suspendable unit of work: its body
// may await another Task's completion and resume later on any worker
// eligible to run its originating workgroup's continuation.
//
// The package provides no distributed scheduling, no persistence, no
// preemption (cooperation only), no priority inheritance, no deadline
// scheduling, no fair-share accounting, no NUMA topology awareness beyond
// contiguous worker-index ranges, and no resizing of the worker pool once
// execution has started.
package scheduler
