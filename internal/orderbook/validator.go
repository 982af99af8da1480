package orderbook

import "fmt"

// Validate runs the full recursive-descent invariant check from the
// testable-properties list: AVL balance and height, BST ordering and
// price uniqueness, parent/child back-pointer consistency, FIFO
// accounting, and the cached inside-quote invariants. It returns the
// first invariant violation found, or nil if the book is consistent.
//
// Validate is O(levels + resting orders) and is meant for debug builds
// and tests, not the hot path — the core never calls it itself.
func Validate(b *Book) error {
	if err := validateSide(b.bids, b.activeBidLevels); err != nil {
		return fmt.Errorf("bid side: %w", err)
	}
	if err := validateSide(b.asks, b.activeAskLevels); err != nil {
		return fmt.Errorf("ask side: %w", err)
	}

	if err := validateInside(b.bids, b.highestBid, b.activeBidLevels, true); err != nil {
		return fmt.Errorf("highest bid: %w", err)
	}
	if err := validateInside(b.asks, b.lowestAsk, b.activeAskLevels, false); err != nil {
		return fmt.Errorf("lowest ask: %w", err)
	}

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok && bid >= ask {
			return fmt.Errorf("book crossed at rest: bid %d >= ask %d", bid, ask)
		}
	}

	return nil
}

// validateSide checks the AVL, BST, and FIFO invariants for one side's
// tree, and that activeCount matches the number of non-empty levels.
func validateSide(tree *AVLTree, activeCount int) error {
	seen := make(map[int64]bool)
	active := 0

	var walk func(n, parent *PriceLevel, lowBound, highBound *int64) error
	walk = func(n, parent *PriceLevel, lowBound, highBound *int64) error {
		if n == nil {
			return nil
		}
		if n.parent != parent {
			return fmt.Errorf("level %d: parent back-pointer mismatch", n.Price)
		}
		if lowBound != nil && n.Price <= *lowBound {
			return fmt.Errorf("BST violation: level %d not greater than ancestor bound %d", n.Price, *lowBound)
		}
		if highBound != nil && n.Price >= *highBound {
			return fmt.Errorf("BST violation: level %d not less than ancestor bound %d", n.Price, *highBound)
		}
		if seen[n.Price] {
			return fmt.Errorf("duplicate price %d in tree", n.Price)
		}
		seen[n.Price] = true

		lh, rh := levelHeight(n.left), levelHeight(n.right)
		bf := lh - rh
		if bf > 1 || bf < -1 {
			return fmt.Errorf("level %d: AVL balance factor %d out of range", n.Price, bf)
		}
		wantHeight := 1 + max(lh, rh)
		if n.height != wantHeight {
			return fmt.Errorf("level %d: height %d, want %d", n.Price, n.height, wantHeight)
		}

		if err := validateFIFO(n); err != nil {
			return fmt.Errorf("level %d: %w", n.Price, err)
		}
		if n.Size > 0 {
			active++
		}

		if err := walk(n.left, n, lowBound, &n.Price); err != nil {
			return err
		}
		return walk(n.right, n, &n.Price, highBound)
	}

	if err := walk(tree.root, nil, nil, nil); err != nil {
		return err
	}
	if active != activeCount {
		return fmt.Errorf("active level count %d, want %d", activeCount, active)
	}
	return nil
}

// validateFIFO checks a level's Size/TotalVolume bookkeeping and that
// every resting order in its FIFO points back to this level at this
// price, with correctly terminated head/tail links.
func validateFIFO(level *PriceLevel) error {
	if level.head != nil && level.head.prev != nil {
		return fmt.Errorf("head has non-nil prev")
	}
	if level.tail != nil && level.tail.next != nil {
		return fmt.Errorf("tail has non-nil next")
	}

	count := 0
	var volume int64
	var prev *OrderNode
	for n := level.head; n != nil; n = n.next {
		if n.level != level {
			return fmt.Errorf("order %s: level back-reference mismatch", n.Order.UID)
		}
		if n.Order.Price != level.Price {
			return fmt.Errorf("order %s: price %d does not match level price %d", n.Order.UID, n.Order.Price, level.Price)
		}
		if n.Order.Shares <= 0 {
			return fmt.Errorf("order %s: resting with non-positive shares %d", n.Order.UID, n.Order.Shares)
		}
		if n.prev != prev {
			return fmt.Errorf("order %s: prev link mismatch", n.Order.UID)
		}
		count++
		volume += n.Order.Shares
		prev = n
	}
	if level.tail != prev {
		return fmt.Errorf("tail does not match last FIFO node")
	}
	if count != level.Size {
		return fmt.Errorf("Size %d, want %d from FIFO walk", level.Size, count)
	}
	if volume != level.TotalVolume {
		return fmt.Errorf("TotalVolume %d, want %d from FIFO walk", level.TotalVolume, volume)
	}
	return nil
}

// validateInside checks that the cached inside level is either nil with
// zero active levels, or the true price extremum among active levels.
func validateInside(tree *AVLTree, cached *PriceLevel, activeCount int, wantMax bool) error {
	if activeCount == 0 {
		if cached != nil {
			return fmt.Errorf("cached level non-nil with zero active levels")
		}
		return nil
	}
	if cached == nil {
		return fmt.Errorf("cached level nil with %d active levels", activeCount)
	}
	if cached.Size == 0 {
		return fmt.Errorf("cached level %d has zero size", cached.Price)
	}

	var extremum int64
	found := false
	tree.WalkRange(minInt64, maxInt64, func(l *PriceLevel) {
		if l.Size == 0 {
			return
		}
		if !found {
			extremum = l.Price
			found = true
			return
		}
		if wantMax && l.Price > extremum {
			extremum = l.Price
		}
		if !wantMax && l.Price < extremum {
			extremum = l.Price
		}
	})
	if cached.Price != extremum {
		return fmt.Errorf("cached price %d, true extremum %d", cached.Price, extremum)
	}
	return nil
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)
