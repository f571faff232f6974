// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_PackClosure_Invoke(t *testing.T) {
	var got WorkgroupID = InvalidWorkgroupID
	item := PackClosure(3, func(ctx *Context) { got = ctx.WorkgroupID() })
	require.Equal(t, WorkgroupID(3), item.Group())
	require.Equal(t, KindClosure, item.Kind())

	item.invoke(&Context{group: 3})
	require.Equal(t, WorkgroupID(3), got)
}

func Test_PackFunc_BoundArgs(t *testing.T) {
	var gotArgs []any
	fn := func(ctx *Context, args ...any) { gotArgs = args }

	item, err := PackFunc(1, fn, "a", 2, true)
	require.NoError(t, err)
	require.Equal(t, KindBoundFunc, item.Kind())

	item.invoke(&Context{})
	require.Equal(t, []any{"a", 2, true}, gotArgs)
}

func Test_PackFunc_TooManyArgsRejected(t *testing.T) {
	fn := func(*Context, ...any) {}
	_, err := PackFunc(1, fn, 1, 2, 3, 4, 5)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSubmissionTooLarge))

	var tooLarge *SubmissionTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	require.Equal(t, 5, tooLarge.ArgCount)
	require.Equal(t, maxInlineArgs, tooLarge.MaxArgs)
}

func Test_WorkItem_ZeroValueIsInvalid(t *testing.T) {
	var item WorkItem
	require.False(t, item.valid())
}
