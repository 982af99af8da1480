package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Seed scenario 6 (spec §8): inserting prices 10..70 in order produces a
// balanced tree of height 3, rooted at 40 with children 20 and 60.
func TestAVLTree_SeedScenarioShape(t *testing.T) {
	tree := NewAVLTree()
	for _, price := range []int64{10, 20, 30, 40, 50, 60, 70} {
		tree.Insert(NewPriceLevel(price))
	}

	require.Equal(t, 7, tree.Size())
	require.Equal(t, 3, levelHeight(tree.Root()))
	require.Equal(t, int64(40), tree.Root().Price)
	require.Equal(t, int64(20), tree.Root().left.Price)
	require.Equal(t, int64(60), tree.Root().right.Price)
}

func TestAVLTree_SuccessorPredecessor(t *testing.T) {
	tree := NewAVLTree()
	levels := make(map[int64]*PriceLevel)
	for _, price := range []int64{50, 30, 70, 20, 40, 60, 80} {
		l := NewPriceLevel(price)
		levels[price] = l
		tree.Insert(l)
	}

	require.Equal(t, int64(30), tree.Successor(levels[20]).Price)
	require.Equal(t, int64(40), tree.Successor(levels[30]).Price)
	require.Nil(t, tree.Successor(levels[80]))

	require.Equal(t, int64(70), tree.Predecessor(levels[80]).Price)
	require.Nil(t, tree.Predecessor(levels[20]))
}

func TestAVLTree_MinMax(t *testing.T) {
	tree := NewAVLTree()
	require.Nil(t, tree.Min())
	require.Nil(t, tree.Max())

	for _, price := range []int64{50, 10, 90, 30, 70} {
		tree.Insert(NewPriceLevel(price))
	}

	require.Equal(t, int64(10), tree.Min().Price)
	require.Equal(t, int64(90), tree.Max().Price)
}

func TestAVLTree_BalancedAfterDescendingInserts(t *testing.T) {
	tree := NewAVLTree()
	for price := int64(70); price >= 10; price -= 10 {
		tree.Insert(NewPriceLevel(price))
	}

	var check func(n *PriceLevel) int
	check = func(n *PriceLevel) int {
		if n == nil {
			return 0
		}
		lh := check(n.left)
		rh := check(n.right)
		bf := lh - rh
		require.LessOrEqual(t, bf, 1)
		require.GreaterOrEqual(t, bf, -1)
		return 1 + max(lh, rh)
	}
	check(tree.Root())
}
