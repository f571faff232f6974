// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package scheduler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinAffinity, when the owning scheduler was built WithAffinity, locks the
// worker's goroutine to its own OS thread and pins that thread to the CPU
// whose index matches the worker's id modulo NumCPU; otherwise it does
// nothing. This is the Go
// analogue of the original's pthread/SetThreadAffinityMask call in its
// worker entry point; unlike the original it is strictly best-effort,
// since Go's runtime (GOMAXPROCS, the non-preemptible syscall pool) can
// still migrate work onto other threads even with one goroutine locked.
func (w *Worker) pinAffinity() {
	if !w.sched.affinity {
		return
	}

	runtime.LockOSThread()

	ncpu := runtime.NumCPU()
	if ncpu <= 0 {
		return
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(int(uint32(w.id)) % ncpu)

	// Best effort: a failure here (e.g. restricted cgroup, missing
	// CAP_SYS_NICE) degrades to "runs somewhere," not a correctness issue,
	// so it is logged rather than surfaced as an error return.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		w.sched.logger().Log(LogEntry{
			Level:    LevelWarn,
			Category: "affinity",
			Worker:   w.id,
			Message:  "SchedSetaffinity failed",
			Err:      err,
		})
	}
}
