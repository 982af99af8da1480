// Package orderbook implements the limit order book data structure: a pair
// of AVL-balanced price trees, one per side, whose nodes are price levels
// each holding a FIFO of resting orders.
//
// The order book maintains buy (bid) and sell (ask) orders organized by
// price. At each price level, orders are stored in a FIFO queue to
// implement price-time priority matching.
package orderbook

import (
	"github.com/lhoste/lobcore/internal/orders"
)

// OrderNode is a node in the doubly-linked list of orders at a price level.
// Using a doubly-linked list enables O(1) removal from anywhere in the
// queue, which is critical for fast order cancellation and reduction.
type OrderNode struct {
	Order *orders.Order
	prev  *OrderNode
	next  *OrderNode
	level *PriceLevel // Back-pointer, valid until the event that retires it returns.
}

// Next returns the next node in the queue.
func (n *OrderNode) Next() *OrderNode {
	return n.next
}

// Level returns the owning price level.
func (n *OrderNode) Level() *PriceLevel {
	return n.level
}

// Reduce shrinks the node's order by delta shares, keeping the owning
// level's TotalVolume consistent. If delta consumes the remainder, the
// node is spliced out of the level's FIFO (Cancel) and the order's Shares
// is set to zero. Reduce never goes negative: delta >= Order.Shares fully
// retires the order.
func (n *OrderNode) Reduce(delta int64) {
	if delta >= n.Order.Shares {
		n.Cancel()
		return
	}
	n.Order.Shares -= delta
	n.level.TotalVolume -= delta
}

// Cancel fully retires the node: zeroes the order's Shares, decrements the
// level's Size, and splices the node out of the FIFO. The level back
// reference on the node remains valid after Cancel returns so callers can
// inspect Level() to repair cached inside quotes.
func (n *OrderNode) Cancel() {
	pl := n.level
	pl.TotalVolume -= n.Order.Shares
	n.Order.Shares = 0
	pl.Size--

	if n.prev != nil {
		n.prev.next = n.next
	} else {
		pl.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		pl.tail = n.prev
	}

	n.prev = nil
	n.next = nil
}

// PriceLevel represents all resting orders at a single price on one side.
//
// Design rationale:
//   - Orders at the same price are stored in arrival order (FIFO).
//   - A doubly-linked list allows O(1) append at the tail and O(1) removal
//     from anywhere once the node is known.
//   - TotalVolume is maintained incrementally so volume_at is O(1).
//   - The level doubles as an AVL tree node: left/right/parent/height live
//     directly on it (intrusive), avoiding a separate node wrapper.
//
// A level is never removed from its tree once inserted (lazy deletion):
// when Size reaches zero the level persists, ready to be reused if the
// same price trades again.
type PriceLevel struct {
	Price       int64 // Fixed-point price tick (e.g. 15025 = $150.25).
	head        *OrderNode
	tail        *OrderNode
	Size        int   // Number of resting orders at this level.
	TotalVolume int64 // Sum of Shares over the FIFO.

	// Intrusive AVL tree metadata. See avltree.go.
	left, right, parent *PriceLevel
	height              int
}

// NewPriceLevel creates a new empty price level.
func NewPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// IsEmpty returns true if there are no resting orders at this level.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Size == 0
}

// Head returns the first order node (highest time priority), or nil if the
// level is empty.
func (pl *PriceLevel) Head() *OrderNode {
	return pl.head
}

// Tail returns the last order node, or nil if the level is empty.
func (pl *PriceLevel) Tail() *OrderNode {
	return pl.tail
}

// Append adds an order to the tail of the queue (lowest time priority at
// this price). Returns the OrderNode for O(1) lookup later.
// Time complexity: O(1).
func (pl *PriceLevel) Append(order *orders.Order) *OrderNode {
	node := &OrderNode{Order: order, level: pl}

	if pl.tail == nil {
		pl.head = node
		pl.tail = node
	} else {
		node.prev = pl.tail
		pl.tail.next = node
		pl.tail = node
	}

	pl.Size++
	pl.TotalVolume += order.Shares
	return node
}

// Orders returns a slice of all orders at this level, head to tail. This
// allocates; use for diagnostics/tests, not the hot path.
func (pl *PriceLevel) Orders() []*orders.Order {
	result := make([]*orders.Order, 0, pl.Size)
	for node := pl.head; node != nil; node = node.next {
		result = append(result, node.Order)
	}
	return result
}
