package orderbook

import (
	"fmt"
	"strings"

	"github.com/lhoste/lobcore/internal/orders"
)

// Book composes the price-level trees, the order-id indexes, and the
// price indexes for a single tradable instrument, and drives matching.
//
// Architecture:
//
//	                      Book
//	                        |
//	       +----------------+----------------+
//	       |                                 |
//	    bids (AVLTree)                  asks (AVLTree)
//	       |                                 |
//	    PriceLevel                       PriceLevel
//	    (ordered by Price)               (ordered by Price)
//	       |                                 |
//	    OrderNode FIFO                   OrderNode FIFO
//	    (time priority)                  (time priority)
//
// Key design decisions:
//
//  1. Two AVL trees, both ordered by price ascending: highestBid caches
//     the tree's rightmost active level on the bid side, lowestAsk caches
//     the leftmost active level on the ask side. Both caches are kept
//     current incrementally rather than recomputed from the tree on
//     every read, so BestBid/BestAsk are O(1).
//  2. Two uid -> *OrderNode maps give O(1) lookup for ReduceOrder and
//     PositionOf without walking a level's FIFO to find the order first.
//  3. Levels are never removed from their tree once inserted (lazy
//     deletion, see updateInsideBid/updateInsideAsk): an emptied level
//     persists, ready for reuse the next time its price trades.
//
// The Book is not safe for concurrent use; callers serialize access
// (e.g. the disruptor package's single-threaded event processor, or a
// mutex at a higher layer).
type Book struct {
	symbol string

	bids *AVLTree
	asks *AVLTree

	bidLevels map[int64]*PriceLevel
	askLevels map[int64]*PriceLevel

	bidIndex map[string]*OrderNode
	askIndex map[string]*OrderNode

	highestBid *PriceLevel
	lowestAsk  *PriceLevel

	activeBidLevels int
	activeAskLevels int

	nextTradeID uint64

	// OnTrade, if set, is invoked once per execution produced by the
	// match loop. It is an optional hook around execute_trade for
	// callers that want a trade tape or settlement feed; the core
	// itself does not record executed prices anywhere else.
	OnTrade func(orders.Fill)
}

// NewBook creates an empty book for the given symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol:    symbol,
		bids:      NewAVLTree(),
		asks:      NewAVLTree(),
		bidLevels: make(map[int64]*PriceLevel),
		askLevels: make(map[int64]*PriceLevel),
		bidIndex:  make(map[string]*OrderNode),
		askIndex:  make(map[string]*OrderNode),
	}
}

// Symbol returns the instrument this book is for.
func (b *Book) Symbol() string {
	return b.symbol
}

func (b *Book) sideParts(side orders.Side) (*AVLTree, map[int64]*PriceLevel, map[string]*OrderNode) {
	if side == orders.SideBuy {
		return b.bids, b.bidLevels, b.bidIndex
	}
	return b.asks, b.askLevels, b.askIndex
}

func (b *Book) bumpActiveLevels(side orders.Side, delta int) {
	if side == orders.SideBuy {
		b.activeBidLevels += delta
	} else {
		b.activeAskLevels += delta
	}
}

// AddOrder inserts a new resting limit order and runs the match loop.
//
// Preconditions (caller contract): shares > 0; uid is not already resting
// on either side. The first is a numeric edge the caller must screen —
// AddOrder returns an error rather than asserting, since an HTTP gateway
// must not crash on a single bad request. The second is a duplicate-uid
// caller bug; per the core's failure semantics this is undefined behavior
// that an implementation may assert. This implementation returns an error
// instead of panicking, for the same reason.
func (b *Book) AddOrder(uid string, timestamp, shares, price int64, isBid bool) (*orders.Order, error) {
	return b.AddOrderWithMeta(uid, timestamp, shares, price, isBid, "", "")
}

// AddOrderWithMeta is AddOrder plus ambient account metadata attached to
// the order before the match loop runs, so that any fill produced by this
// same call carries correct maker/taker account attribution. The core
// contract (§6's add_order) never requires this metadata; it exists for
// callers such as the HTTP gateway that need it on the resulting Fills.
func (b *Book) AddOrderWithMeta(uid string, timestamp, shares, price int64, isBid bool, accountID, clientOrderID string) (*orders.Order, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("orderbook: shares must be positive, got %d", shares)
	}
	if _, exists := b.bidIndex[uid]; exists {
		return nil, fmt.Errorf("orderbook: uid %q already resting", uid)
	}
	if _, exists := b.askIndex[uid]; exists {
		return nil, fmt.Errorf("orderbook: uid %q already resting", uid)
	}

	side := orders.SideSell
	if isBid {
		side = orders.SideBuy
	}

	order := &orders.Order{
		UID:       uid,
		Timestamp: timestamp,
		Shares:    shares,
		Quantity:  shares,
		Price:     price,
		Side:      side,
		Symbol:    b.symbol,
		Status:    orders.OrderStatusNew,
		AccountID: accountID,
		ClientOrderID: clientOrderID,
	}

	tree, levels, index := b.sideParts(side)
	level, exists := levels[price]
	wasEmpty := !exists
	if !exists {
		level = NewPriceLevel(price)
		levels[price] = level
		tree.Insert(level)
	} else if level.IsEmpty() {
		wasEmpty = true
	}

	node := level.Append(order)
	index[uid] = node
	if wasEmpty {
		b.bumpActiveLevels(side, 1)
	}

	if isBid {
		if b.highestBid == nil || price > b.highestBid.Price {
			b.highestBid = level
		}
	} else {
		if b.lowestAsk == nil || price < b.lowestAsk.Price {
			b.lowestAsk = level
		}
	}

	b.match()
	return order, nil
}

// ReduceOrder reduces the resting uid's remaining shares by delta,
// retiring it entirely if delta consumes the remainder. A reduce
// referencing an unknown uid is a silent no-op — it absorbs late reduces
// that arrive after the order was already retired by a cross.
func (b *Book) ReduceOrder(uid string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("orderbook: reduce delta must be positive, got %d", delta)
	}

	node, side, found := b.lookup(uid)
	if !found {
		return nil
	}

	level := node.level
	wasInside := (side == orders.SideBuy && level == b.highestBid) ||
		(side == orders.SideSell && level == b.lowestAsk)

	node.Reduce(delta)

	if node.Order.Shares == 0 {
		node.Order.Status = orders.OrderStatusCancelled
		_, _, index := b.sideParts(side)
		delete(index, uid)
		if level.IsEmpty() {
			b.bumpActiveLevels(side, -1)
		}
	} else {
		node.Order.Status = orders.OrderStatusPartiallyFilled
	}

	if wasInside {
		if side == orders.SideBuy {
			b.updateInsideBid(level)
		} else {
			b.updateInsideAsk(level)
		}
	}

	b.match()
	return nil
}

func (b *Book) lookup(uid string) (*OrderNode, orders.Side, bool) {
	if node, ok := b.bidIndex[uid]; ok {
		return node, orders.SideBuy, true
	}
	if node, ok := b.askIndex[uid]; ok {
		return node, orders.SideSell, true
	}
	return nil, 0, false
}

// BestBid returns the cached inside bid price, or false if the bid side
// is empty.
func (b *Book) BestBid() (int64, bool) {
	if b.highestBid == nil {
		return 0, false
	}
	return b.highestBid.Price, true
}

// BestAsk returns the cached inside ask price, or false if the ask side
// is empty.
func (b *Book) BestAsk() (int64, bool) {
	if b.lowestAsk == nil {
		return 0, false
	}
	return b.lowestAsk.Price, true
}

// VolumeAt returns the resting volume at price on side, in O(1).
func (b *Book) VolumeAt(price int64, side orders.Side) int64 {
	_, levels, _ := b.sideParts(side)
	level, ok := levels[price]
	if !ok {
		return 0
	}
	return level.TotalVolume
}

// VolumeBetween sums TotalVolume over every active level on side whose
// price falls within [low, high].
func (b *Book) VolumeBetween(low, high int64, side orders.Side) int64 {
	tree, _, _ := b.sideParts(side)
	var total int64
	tree.WalkRange(low, high, func(level *PriceLevel) {
		if level.Size > 0 {
			total += level.TotalVolume
		}
	})
	return total
}

// PositionOf returns the one-based position of uid within its level's
// FIFO, or an error if uid is not currently resting.
func (b *Book) PositionOf(uid string) (int, error) {
	node, _, found := b.lookup(uid)
	if !found {
		return 0, fmt.Errorf("orderbook: uid %q not found", uid)
	}
	pos := 1
	for n := node.level.head; n != node; n = n.next {
		pos++
	}
	return pos, nil
}

// updateInsideBid repairs the cached highest-bid level after start may
// have drained. If start still holds resting orders, the cache is
// already correct. Otherwise it walks the predecessor chain from start
// until it finds a level with Size > 0, or runs off the tree.
func (b *Book) updateInsideBid(start *PriceLevel) {
	if b.activeBidLevels == 0 {
		b.highestBid = nil
		return
	}
	if start.Size > 0 {
		return
	}
	cur := b.bids.Predecessor(start)
	for cur != nil && cur.Size == 0 {
		cur = b.bids.Predecessor(cur)
	}
	b.highestBid = cur
}

// updateInsideAsk is symmetric to updateInsideBid, walking successors.
func (b *Book) updateInsideAsk(start *PriceLevel) {
	if b.activeAskLevels == 0 {
		b.lowestAsk = nil
		return
	}
	if start.Size > 0 {
		return
	}
	cur := b.asks.Successor(start)
	for cur != nil && cur.Size == 0 {
		cur = b.asks.Successor(cur)
	}
	b.lowestAsk = cur
}

// match runs after every AddOrder and ReduceOrder, consuming crossing
// head orders until the book uncrosses or either side empties. By
// convention the resting ask is recorded as the fill's maker (its price
// is the execution price, per §4.6's "always the maker's price") and the
// resting bid as the taker — the loop itself is symmetric regardless of
// which side's event triggered it.
func (b *Book) match() {
	for {
		if b.highestBid == nil || b.lowestAsk == nil {
			return
		}
		if b.lowestAsk.Price > b.highestBid.Price {
			return
		}

		bidLevel, askLevel := b.highestBid, b.lowestAsk
		bidNode, askNode := bidLevel.head, askLevel.head

		qty := bidNode.Order.Shares
		if askNode.Order.Shares < qty {
			qty = askNode.Order.Shares
		}

		timestamp := bidNode.Order.Timestamp
		if askNode.Order.Timestamp > timestamp {
			timestamp = askNode.Order.Timestamp
		}

		fill := orders.Fill{
			TradeID:        b.nextTradeID,
			MakerOrderUID:  askNode.Order.UID,
			TakerOrderUID:  bidNode.Order.UID,
			Price:          askLevel.Price,
			Quantity:       qty,
			Timestamp:      timestamp,
			Symbol:         b.symbol,
			MakerAccountID: askNode.Order.AccountID,
			TakerAccountID: bidNode.Order.AccountID,
			TakerSide:      orders.SideBuy,
		}
		b.nextTradeID++

		bidNode.Reduce(qty)
		askNode.Reduce(qty)

		if bidNode.Order.Shares == 0 {
			bidNode.Order.Status = orders.OrderStatusFilled
			delete(b.bidIndex, bidNode.Order.UID)
			if bidLevel.IsEmpty() {
				b.activeBidLevels--
				b.updateInsideBid(bidLevel)
			}
		} else {
			bidNode.Order.Status = orders.OrderStatusPartiallyFilled
		}

		if askNode.Order.Shares == 0 {
			askNode.Order.Status = orders.OrderStatusFilled
			delete(b.askIndex, askNode.Order.UID)
			if askLevel.IsEmpty() {
				b.activeAskLevels--
				b.updateInsideAsk(askLevel)
			}
		} else {
			askNode.Order.Status = orders.OrderStatusPartiallyFilled
		}

		if b.OnTrade != nil {
			b.OnTrade(fill)
		}
	}
}

// BidDepth returns up to n active bid levels, best price first. n <= 0
// returns every active level. This is ambient (market-data reporting),
// not part of the core contract.
func (b *Book) BidDepth(n int) []*PriceLevel {
	return depth(b.bids.Max, b.bids.Predecessor, n)
}

// AskDepth returns up to n active ask levels, best price first.
func (b *Book) AskDepth(n int) []*PriceLevel {
	return depth(b.asks.Min, b.asks.Successor, n)
}

func depth(start func() *PriceLevel, step func(*PriceLevel) *PriceLevel, n int) []*PriceLevel {
	result := make([]*PriceLevel, 0)
	for l := start(); l != nil; l = step(l) {
		if l.Size == 0 {
			continue
		}
		result = append(result, l)
		if n > 0 && len(result) >= n {
			break
		}
	}
	return result
}

// String renders a shallow book snapshot (top 5 levels per side) for
// diagnostics.
func (b *Book) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s Order Book ===\n", b.symbol)

	asks := b.AskDepth(5)
	sb.WriteString("ASKS:\n")
	for i := len(asks) - 1; i >= 0; i-- {
		l := asks[i]
		fmt.Fprintf(&sb, "  %s: %d shares (%d orders)\n", orders.FormatPrice(l.Price), l.TotalVolume, l.Size)
	}

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok {
			fmt.Fprintf(&sb, "--- Spread: %s ---\n", orders.FormatPrice(ask-bid))
		}
	} else {
		sb.WriteString("--- No Spread ---\n")
	}

	bids := b.BidDepth(5)
	sb.WriteString("BIDS:\n")
	for _, l := range bids {
		fmt.Fprintf(&sb, "  %s: %d shares (%d orders)\n", orders.FormatPrice(l.Price), l.TotalVolume, l.Size)
	}

	return sb.String()
}
