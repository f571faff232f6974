// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

// defaultWorkScale is the logical slot multiplier applied to a workgroup's
// thread count, when no explicit scale is given, matching the original's
// compile-time constant of the same name.
const defaultWorkScale = 4

// Workgroup is an ordered, priority-ranked subset of workers sharing
// inboxes: a contiguous range [StartThreadIdx, StartThreadIdx+ThreadCount)
// of worker indices.
type Workgroup struct {
	// StartThreadIdx is the first worker index that is a member of this
	// group.
	StartThreadIdx uint32
	// ThreadCount is the number of consecutive workers, from
	// StartThreadIdx, that are members of this group.
	ThreadCount uint32
	// Priority selects dequeue order at workers belonging to multiple
	// groups: higher drains first, ties broken by ascending group id.
	Priority uint32
	// WorkScale inflates the logical per-worker inbox capacity
	// (ThreadCount * WorkScale slots) to smooth contention across
	// submitters. Zero means the scheduler's WithWorkScale value if one
	// was given, else defaultWorkScale.
	WorkScale uint32
}

func (g Workgroup) workScale() uint32 {
	if g.WorkScale == 0 {
		return defaultWorkScale
	}
	return g.WorkScale
}

// contains reports whether worker w is a member of this group.
func (g Workgroup) contains(w WorkerID) bool {
	idx := uint32(w)
	return w.Valid() && idx >= g.StartThreadIdx && idx < g.StartThreadIdx+g.ThreadCount
}
