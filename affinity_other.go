// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package scheduler

// pinAffinity is a no-op on platforms without a SchedSetaffinity
// equivalent wired in. WithAffinity still records the caller's intent but
// has no observable effect here.
func (w *Worker) pinAffinity() {}
