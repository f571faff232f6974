// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import "math"

// WorkerID is a dense index into [0, worker_count) identifying a worker
// thread. InvalidWorkerID is the sentinel for "no worker" / "external".
type WorkerID uint32

// InvalidWorkerID is the sentinel value for a worker id that does not
// identify a member of the scheduler's worker pool.
const InvalidWorkerID WorkerID = math.MaxUint32

// External is the worker id carried by a Context built for a non-worker
// (caller) thread, and the worker id SyncWaitResult waits under when
// called from outside the pool.
const External WorkerID = InvalidWorkerID

// Valid reports whether w identifies a real worker slot.
func (w WorkerID) Valid() bool { return w != InvalidWorkerID }

// WorkgroupID is a dense index into a caller-declared group table.
type WorkgroupID uint32

// InvalidWorkgroupID is the sentinel value for "no workgroup".
const InvalidWorkgroupID WorkgroupID = math.MaxUint32

// Valid reports whether g identifies a real workgroup slot.
func (g WorkgroupID) Valid() bool { return g != InvalidWorkgroupID }
