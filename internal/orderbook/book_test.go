package orderbook_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lhoste/lobcore/internal/orderbook"
	"github.com/lhoste/lobcore/internal/orders"
)

func newTestBook(t *testing.T) *orderbook.Book {
	t.Helper()
	return orderbook.NewBook("TEST")
}

func requireValid(t *testing.T, b *orderbook.Book) {
	t.Helper()
	require.NoError(t, orderbook.Validate(b))
}

// Seed scenario 1: inside updates on add, no matches.
func TestAddOrder_InsideUpdatesOnAdd(t *testing.T) {
	b := newTestBook(t)

	_, err := b.AddOrder("x1", 1, 5, 10000, true)
	require.NoError(t, err)
	_, err = b.AddOrder("x2", 2, 5, 10100, false)
	require.NoError(t, err)

	bid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(10000), bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	require.Equal(t, int64(10100), ask)

	requireValid(t, b)
}

// Seed scenario 2: crossing consumes the aggressor fully; the resting
// ask keeps the remainder.
func TestAddOrder_CrossingConsumesAggressor(t *testing.T) {
	b := newTestBook(t)

	_, err := b.AddOrder("x1", 1, 5, 10000, true)
	require.NoError(t, err)
	_, err = b.AddOrder("x2", 2, 5, 10100, false)
	require.NoError(t, err)
	_, err = b.AddOrder("x3", 3, 3, 10200, true)
	require.NoError(t, err)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	require.Equal(t, int64(10100), ask)
	require.Equal(t, int64(2), b.VolumeAt(10100, orders.SideSell))

	bid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(10000), bid)
	require.Equal(t, int64(5), b.VolumeAt(10000, orders.SideBuy))

	err = b.ReduceOrder("x3", 1)
	require.NoError(t, err) // x3 already fully retired: silent no-op

	requireValid(t, b)
}

// Seed scenario 3: exact cross retires both sides, the level at the
// traded price remains in the tree with size zero.
func TestAddOrder_ExactCrossBothRetire(t *testing.T) {
	b := newTestBook(t)

	_, err := b.AddOrder("a", 1, 10, 5000, true)
	require.NoError(t, err)
	_, err = b.AddOrder("b", 2, 10, 5000, false)
	require.NoError(t, err)

	_, ok := b.BestBid()
	require.False(t, ok)
	_, ok = b.BestAsk()
	require.False(t, ok)

	require.Equal(t, int64(0), b.VolumeAt(5000, orders.SideBuy))
	require.Equal(t, int64(0), b.VolumeAt(5000, orders.SideSell))

	requireValid(t, b)
}

// Seed scenario 4: reducing the order at the inside drops through to the
// predecessor level.
func TestReduceOrder_DropsThroughInside(t *testing.T) {
	b := newTestBook(t)

	_, err := b.AddOrder("a", 1, 5, 1000, true)
	require.NoError(t, err)
	_, err = b.AddOrder("b", 2, 5, 1100, true)
	require.NoError(t, err)
	_, err = b.AddOrder("c", 3, 5, 1200, true)
	require.NoError(t, err)

	bid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(1200), bid)

	require.NoError(t, b.ReduceOrder("c", 5))

	bid, ok = b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(1100), bid)

	requireValid(t, b)
}

// Seed scenario 5: FIFO within a level — earlier arrivals execute first.
func TestMatch_FIFOWithinLevel(t *testing.T) {
	b := newTestBook(t)

	_, err := b.AddOrder("x", 1, 1, 500, true)
	require.NoError(t, err)
	_, err = b.AddOrder("y", 2, 1, 500, true)
	require.NoError(t, err)
	_, err = b.AddOrder("z", 3, 1, 500, true)
	require.NoError(t, err)

	_, err = b.AddOrder("s", 4, 2, 500, false)
	require.NoError(t, err)

	pos, err := b.PositionOf("z")
	require.NoError(t, err)
	require.Equal(t, 1, pos) // x, y consumed; z is now the sole head

	bid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(500), bid)

	_, ok = b.BestAsk()
	require.False(t, ok)

	requireValid(t, b)
}

// Seed scenario 6: AVL stress — balanced tree shape after sequential
// inserts.
func TestAVLTree_StressBalance(t *testing.T) {
	b := newTestBook(t)

	for i, price := range []int64{10, 20, 30, 40, 50, 60, 70} {
		_, err := b.AddOrder(string(rune('a'+i)), int64(i+1), 1, price, true)
		require.NoError(t, err)
	}

	requireValid(t, b)
}

func TestReduceOrder_UnknownUIDIsNoOp(t *testing.T) {
	b := newTestBook(t)
	require.NoError(t, b.ReduceOrder("ghost", 1))
	requireValid(t, b)
}

func TestAddOrder_DuplicateUIDRejected(t *testing.T) {
	b := newTestBook(t)
	_, err := b.AddOrder("dup", 1, 5, 100, true)
	require.NoError(t, err)
	_, err = b.AddOrder("dup", 2, 5, 101, false)
	require.Error(t, err)
}

func TestAddOrder_NonPositiveSharesRejected(t *testing.T) {
	b := newTestBook(t)
	_, err := b.AddOrder("a", 1, 0, 100, true)
	require.Error(t, err)
}

func TestReduceOrder_VolumeAccountingOnPartialReduce(t *testing.T) {
	b := newTestBook(t)
	_, err := b.AddOrder("a", 1, 10, 100, true)
	require.NoError(t, err)

	require.NoError(t, b.ReduceOrder("a", 4))
	require.Equal(t, int64(6), b.VolumeAt(100, orders.SideBuy))

	// Reducing past the remainder retires the order and must not leak
	// volume by subtracting zero instead of the pre-zero amount.
	require.NoError(t, b.ReduceOrder("a", 100))
	require.Equal(t, int64(0), b.VolumeAt(100, orders.SideBuy))

	pos, err := b.PositionOf("a")
	require.Error(t, err)
	require.Equal(t, 0, pos)

	requireValid(t, b)
}

func TestDrainingBookRestoresNoneQuotes(t *testing.T) {
	b := newTestBook(t)

	uids := []string{"o1", "o2", "o3"}
	prices := []int64{100, 101, 102}
	for i, uid := range uids {
		_, err := b.AddOrder(uid, int64(i+1), 5, prices[i], true)
		require.NoError(t, err)
	}
	for _, uid := range uids {
		require.NoError(t, b.ReduceOrder(uid, 5))
	}

	_, ok := b.BestBid()
	require.False(t, ok)
	_, ok = b.BestAsk()
	require.False(t, ok)

	requireValid(t, b)
}

func TestVolumeBetween(t *testing.T) {
	b := newTestBook(t)
	_, err := b.AddOrder("a", 1, 5, 100, true)
	require.NoError(t, err)
	_, err = b.AddOrder("b", 2, 7, 110, true)
	require.NoError(t, err)
	_, err = b.AddOrder("c", 3, 3, 120, true)
	require.NoError(t, err)

	require.Equal(t, int64(12), b.VolumeBetween(100, 110, orders.SideBuy))
	require.Equal(t, int64(15), b.VolumeBetween(90, 130, orders.SideBuy))
	require.Equal(t, int64(0), b.VolumeBetween(200, 300, orders.SideBuy))
}
