package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	q := Build(
		WithCondition("status", "active"),
		WithIDIn([]int64{1, 2, 3}),
		WithOrderDesc("response_count"),
		WithLimit(5),
		WithOffset(10),
	)

	conditions := q.Conditions()
	require.Len(t, conditions, 2)
	require.Equal(t, "status", conditions[0].Field())
	require.Equal(t, "active", conditions[0].Value())
	require.False(t, conditions[0].In())
	require.Equal(t, "id", conditions[1].Field())
	require.True(t, conditions[1].In())

	orders := q.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, "response_count", orders[0].Field())
	require.False(t, orders[0].Ascending())

	require.Equal(t, 5, q.LimitValue())
	require.Equal(t, 10, q.OffsetValue())
}

func TestBuild_Empty(t *testing.T) {
	q := Build()
	require.Empty(t, q.Conditions())
	require.Empty(t, q.Orders())
	require.Zero(t, q.LimitValue())
	require.Zero(t, q.OffsetValue())
}

func TestCondition_String(t *testing.T) {
	q := Build(WithCondition("batch_id", int64(7)), WithConditionIn("id", []int64{1, 2}))
	require.Equal(t, "batch_id = 7", q.Conditions()[0].String())
	require.Equal(t, "id IN [1 2]", q.Conditions()[1].String())
}
