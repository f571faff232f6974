// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_workItemRing_FIFO(t *testing.T) {
	r := newWorkItemRing(8)

	var order []int
	for i := range 5 {
		i := i
		ok := r.Push(PackClosure(0, func(*Context) { order = append(order, i) }))
		require.True(t, ok)
	}

	for i := range 5 {
		item, ok := r.Pop()
		require.True(t, ok)
		item.invoke(nil)
		require.Equal(t, i, order[i])
	}

	_, ok := r.Pop()
	require.False(t, ok, "ring should be empty")
}

func Test_workItemRing_FullReturnsFalse(t *testing.T) {
	r := newWorkItemRing(2)

	require.True(t, r.Push(PackClosure(0, func(*Context) {})))
	require.True(t, r.Push(PackClosure(0, func(*Context) {})))
	require.False(t, r.Push(PackClosure(0, func(*Context) {})), "ring capacity 2 should reject a third push")

	_, ok := r.Pop()
	require.True(t, ok)
	require.True(t, r.Push(PackClosure(0, func(*Context) {})), "freed slot should accept a new push")
}

func Test_workItemRing_ConcurrentProducersSingleConsumer(t *testing.T) {
	r := newWorkItemRing(64)

	const producers = 8
	const perProducer = 2000
	const total = producers * perProducer

	var pushed atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !r.Push(PackClosure(0, func(*Context) {})) {
					// spill path isn't exercised here; spin until a slot frees.
				}
				pushed.Add(1)
			}
		}()
	}

	var popped int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for popped < total {
			if _, ok := r.Pop(); ok {
				popped++
			}
		}
	}()

	wg.Wait()
	<-done

	require.EqualValues(t, total, pushed.Load())
	require.Equal(t, total, popped)
	require.True(t, r.IsEmpty())
}

// Test_workItemRing_ConcurrentConsumers covers the owner-plus-one-thief
// case worker.go's stealFrom relies on: two goroutines calling Pop on the
// same ring concurrently must never observe the same item twice nor lose
// one.
func Test_workItemRing_ConcurrentConsumers(t *testing.T) {
	r := newWorkItemRing(32)

	const total = 20_000
	var seen sync.Map // index -> struct{}{}
	var dup atomic.Int64

	// A single producer feeds the ring incrementally (capacity 32 is far
	// smaller than total) while two consumers race to drain it.
	var wg sync.WaitGroup
	var produced atomic.Int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			i := i
			for !r.Push(PackClosure(0, func(*Context) {
				if _, loaded := seen.LoadOrStore(i, struct{}{}); loaded {
					dup.Add(1)
				}
			})) {
			}
			produced.Add(1)
		}
	}()

	var popped atomic.Int64
	consume := func() {
		defer wg.Done()
		for popped.Load() < total {
			if item, ok := r.Pop(); ok {
				item.invoke(nil)
				popped.Add(1)
			}
		}
	}
	wg.Add(2)
	go consume()
	go consume()

	wg.Wait()

	require.EqualValues(t, total, produced.Load())
	require.EqualValues(t, total, popped.Load())
	require.Zero(t, dup.Load(), "no item should be delivered to two consumers")
}
