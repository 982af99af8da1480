package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lhoste/lobcore/internal/orders"
)

func newTestOrder(uid string, shares, price int64) *orders.Order {
	return &orders.Order{UID: uid, Shares: shares, Quantity: shares, Price: price}
}

func TestPriceLevel_Append(t *testing.T) {
	pl := NewPriceLevel(100)
	n1 := pl.Append(newTestOrder("a", 5, 100))
	n2 := pl.Append(newTestOrder("b", 3, 100))

	require.Equal(t, 2, pl.Size)
	require.Equal(t, int64(8), pl.TotalVolume)
	require.Same(t, n1, pl.Head())
	require.Same(t, n2, pl.Tail())
	require.Same(t, n2, n1.Next())
}

func TestOrderNode_ReducePartial(t *testing.T) {
	pl := NewPriceLevel(100)
	n := pl.Append(newTestOrder("a", 10, 100))

	n.Reduce(4)

	require.Equal(t, int64(6), n.Order.Shares)
	require.Equal(t, int64(6), pl.TotalVolume)
	require.Equal(t, 1, pl.Size)
}

// Reduce-to-zero must subtract the pre-zero shares amount from
// TotalVolume, not zero — the latent bug the spec explicitly forbids
// reproducing.
func TestOrderNode_ReduceToZeroAccountsCorrectly(t *testing.T) {
	pl := NewPriceLevel(100)
	a := pl.Append(newTestOrder("a", 10, 100))
	pl.Append(newTestOrder("b", 5, 100))

	a.Reduce(10)

	require.Equal(t, int64(0), a.Order.Shares)
	require.Equal(t, int64(5), pl.TotalVolume)
	require.Equal(t, 1, pl.Size)
	require.Same(t, pl.Head(), pl.head)
	require.Equal(t, "b", pl.head.Order.UID)
}

func TestOrderNode_ReduceOverFullyConsumes(t *testing.T) {
	pl := NewPriceLevel(100)
	a := pl.Append(newTestOrder("a", 10, 100))

	a.Reduce(9999)

	require.Equal(t, int64(0), a.Order.Shares)
	require.Equal(t, int64(0), pl.TotalVolume)
	require.Equal(t, 0, pl.Size)
	require.Nil(t, pl.head)
	require.Nil(t, pl.tail)
}

func TestOrderNode_CancelMiddleSplicesCorrectly(t *testing.T) {
	pl := NewPriceLevel(100)
	a := pl.Append(newTestOrder("a", 1, 100))
	b := pl.Append(newTestOrder("b", 1, 100))
	c := pl.Append(newTestOrder("c", 1, 100))

	b.Cancel()

	require.Equal(t, 2, pl.Size)
	require.Equal(t, int64(2), pl.TotalVolume)
	require.Same(t, c, a.Next())
	require.Same(t, a, pl.Head())
	require.Same(t, c, pl.Tail())
}
