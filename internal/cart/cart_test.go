package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddOrIncrement_EmptyCart(t *testing.T) {
	price := dec("12.34")
	for q := 1; q <= 25; q++ {
		c := New("u1", t0)
		require.NoError(t, c.AddOrIncrement("p1", price, q, t0))

		require.Len(t, c.Items, 1)
		assert.Equal(t, q, c.Items[0].Quantity)
		assert.Equal(t, q, c.TotalQuantity)
		assert.True(t, c.TotalPrice.Equal(price.Mul(decimal.NewFromInt(int64(q)))), "q=%d total=%s", q, c.TotalPrice)
	}
}

func TestAddOrIncrement_RejectsNonPositive(t *testing.T) {
	c := New("u1", t0)
	assert.ErrorIs(t, c.AddOrIncrement("p1", dec("1"), 0, t0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.AddOrIncrement("p1", dec("1"), -2, t0), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.TotalQuantity)
}

func TestAddOrIncrement_ExistingLineKeepsAddedAt(t *testing.T) {
	c := New("u1", t0)
	require.NoError(t, c.AddOrIncrement("p1", dec("2"), 1, t0))
	later := t0.Add(time.Hour)
	require.NoError(t, c.AddOrIncrement("p2", dec("3"), 1, later))
	require.NoError(t, c.AddOrIncrement("p1", dec("2"), 2, later))

	require.Len(t, c.Items, 2)
	assert.Equal(t, "p1", c.Items[0].ProductID, "insertion order kept")
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, t0, c.Items[0].AddedAt)
	assert.Equal(t, later, c.LastUpdated)
	assert.Equal(t, 4, c.TotalQuantity)
	assert.True(t, c.TotalPrice.Equal(dec("9")))
}

func TestDecrementScenario(t *testing.T) {
	c := New("u1", t0)
	require.NoError(t, c.AddOrIncrement("A", dec("10"), 2, t0))
	require.NoError(t, c.AddOrIncrement("B", dec("5"), 1, t0))
	assert.True(t, c.TotalPrice.Equal(dec("25")))
	assert.Equal(t, 3, c.TotalQuantity)

	require.NoError(t, c.DecrementOrRemove("A", dec("10"), t0))
	assert.True(t, c.TotalPrice.Equal(dec("15")))
	assert.Equal(t, 2, c.TotalQuantity)
	assert.Equal(t, 1, c.Items[0].Quantity)

	require.NoError(t, c.DecrementOrRemove("A", dec("10"), t0))
	assert.False(t, c.Has("A"))
	assert.True(t, c.TotalPrice.Equal(dec("5")))
	assert.Equal(t, 1, c.TotalQuantity)
	for _, it := range c.Items {
		assert.Positive(t, it.Quantity)
	}
}

func TestDecrementOrRemove_MissingLine(t *testing.T) {
	c := New("u1", t0)
	assert.ErrorIs(t, c.DecrementOrRemove("nope", dec("1"), t0), ErrItemNotFound)
}

func TestDecrementOrRemove_UsesCurrentPrice(t *testing.T) {
	c := New("u1", t0)
	require.NoError(t, c.AddOrIncrement("A", dec("10"), 2, t0))

	// the price went up after the add; the decrement subtracts the new price
	require.NoError(t, c.DecrementOrRemove("A", dec("12"), t0))
	assert.True(t, c.TotalPrice.Equal(dec("8")))

	// a deleted product subtracts nothing
	require.NoError(t, c.DecrementOrRemove("A", decimal.Zero, t0))
	assert.True(t, c.TotalPrice.Equal(dec("8")))
	assert.Equal(t, 0, c.TotalQuantity)
}

func TestClear(t *testing.T) {
	c := New("u1", t0)
	require.NoError(t, c.AddOrIncrement("A", dec("10"), 2, t0))
	c.Clear(t0)

	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.TotalQuantity)
	assert.True(t, c.TotalPrice.IsZero())
	assert.False(t, c.Recompute(map[string]decimal.Decimal{}))
}

func TestRecompute(t *testing.T) {
	c := New("u1", t0)
	require.NoError(t, c.AddOrIncrement("A", dec("10"), 3, t0))
	require.NoError(t, c.AddOrIncrement("B", dec("4"), 1, t0))

	assert.False(t, c.Recompute(map[string]decimal.Decimal{"A": dec("10"), "B": dec("4.00")}), "no drift")

	assert.True(t, c.Recompute(map[string]decimal.Decimal{"A": dec("11")}), "B deleted and A repriced")
	assert.Equal(t, []string{"A"}, c.ProductIDs())
	assert.Equal(t, 3, c.TotalQuantity)
	assert.True(t, c.TotalPrice.Equal(dec("33")))
}
