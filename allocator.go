// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

// Allocator is the hook Design Notes §9 reserves for callers that want to
// control allocation, mirroring the original's custom-allocator template
// parameter. The scheduler hands it to work-item and task bodies through
// Context.Alloc and Context.Free; WorkItem values and Task frames
// themselves are always allocated by Go's allocator. The default
// implementation defers entirely to Go's allocator; callers embedding this
// scheduler in an allocation-sensitive host can supply their own, e.g.
// backed by a sync.Pool keyed on payload shape.
type Allocator interface {
	// Alloc returns a zeroed block of at least size bytes. Implementations
	// that cannot service a request should return nil; the scheduler falls
	// back to a plain make when that happens.
	Alloc(size int) []byte
	// Free returns a block obtained from Alloc. Implementations that don't
	// pool memory can make this a no-op.
	Free(buf []byte)
}

// defaultAllocator is a pass-through Allocator used when no Option
// supplies one.
type defaultAllocator struct{}

func (defaultAllocator) Alloc(size int) []byte { return make([]byte, size) }

func (defaultAllocator) Free([]byte) {}

// NewDefaultAllocator returns the scheduler's built-in pass-through
// Allocator.
func NewDefaultAllocator() Allocator { return defaultAllocator{} }
