// Package orders defines the order, fill, and trade types shared by the
// matching core and its ambient collaborators (risk, settlement, market
// data, the HTTP gateway).
//
// Key Design Decisions:
//
// 1. Fixed-Point Arithmetic: Prices are stored as int64 in cents (1/100 of a
//    dollar) to avoid floating-point errors. For example, $150.25 is stored
//    as 15025. This is critical in financial systems where accumulated
//    rounding errors are unacceptable and price equality must be exact.
//
// 2. External Identity: Every order carries a UID supplied by the caller
//    (the line-oriented feed, or the HTTP gateway on the caller's behalf).
//    The core never invents identifiers; uniqueness across the book's
//    lifetime is the caller's responsibility. Only limit orders exist here
//    — an order's price never changes once submitted.
//
// 3. Sequence Numbers: Every order additionally receives a process-local,
//    monotonically increasing sequence number when it enters the engine.
//    This is ambient bookkeeping for replay and diagnostics, not part of
//    the core matching contract.
package orders

import (
	"fmt"
	"time"
)

// Side represents the side of an order (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the current state of an order.
//
// The core itself only cares whether Shares has reached zero; Status is
// ambient bookkeeping surfaced to the HTTP gateway, the event log, and the
// CLI client.
type OrderStatus int

const (
	// OrderStatusNew - order has been accepted but not yet processed
	OrderStatusNew OrderStatus = iota

	// OrderStatusPartiallyFilled - order has been partially executed
	OrderStatusPartiallyFilled

	// OrderStatusFilled - order has been completely filled
	OrderStatusFilled

	// OrderStatusCancelled - order was cancelled (by user or system)
	OrderStatusCancelled

	// OrderStatusRejected - order was rejected (failed validation/risk check)
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order represents a single limit order resting in, or retired from, the
// book. Only limit orders exist in this system: no market orders, no
// immediate-or-cancel, no fill-or-kill.
type Order struct {
	// UID is the caller-supplied identifier. Unique across the book's
	// lifetime by caller contract; the core never assigns it.
	UID string

	// SequenceNum is assigned when the order enters the engine, for
	// replay and diagnostics. Not used by the matching core itself.
	SequenceNum uint64

	// Price in cents (fixed-point). Immutable once the order is
	// submitted; a price change is cancel-and-resubmit, never a modify.
	Price int64

	// Quantity is the total number of shares the order was submitted
	// with.
	Quantity int64

	// Shares is the remaining resting size. Zero means the order has
	// been fully consumed — matched or reduced to nothing — and is no
	// longer reachable from the book.
	Shares int64

	// Timestamp is the caller-supplied time of the add event, in
	// nanoseconds since epoch (or whatever unit the feed uses — the
	// core only requires it be non-decreasing across the event
	// stream).
	Timestamp int64

	// Symbol is the tradable instrument this order belongs to.
	Symbol string

	// AccountID identifies the account that placed this order.
	AccountID string

	// ClientOrderID is an optional client-provided identifier for the
	// order, distinct from UID (which the engine treats as primary).
	ClientOrderID string

	// Side indicates whether this is a buy or sell order.
	Side Side

	// Status is the current state of the order. Ambient; the core
	// tracks completion via Shares, not Status.
	Status OrderStatus
}

// RemainingQty returns the unfilled, still-resting quantity.
func (o *Order) RemainingQty() int64 {
	return o.Shares
}

// FilledQty returns how much of the order has executed so far.
func (o *Order) FilledQty() int64 {
	return o.Quantity - o.Shares
}

// IsFilled returns true if the order has been completely consumed.
func (o *Order) IsFilled() bool {
	return o.Shares <= 0
}

// IsActive returns true if the order can still be matched.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// PriceStr returns the price formatted as a dollar string.
func (o *Order) PriceStr() string {
	return FormatPrice(o.Price)
}

// String returns a human-readable representation of the order.
func (o *Order) String() string {
	return fmt.Sprintf("Order{UID:%s, %s %s %d@%s, Filled:%d, Status:%s}",
		o.UID, o.Side, o.Symbol, o.Quantity, o.PriceStr(), o.FilledQty(), o.Status)
}

// Fill represents a single execution (trade) between two orders.
//
// The book's match loop creates one Fill each time it pairs the head
// order of the best bid level with the head order of the best ask level.
// By the book's convention the ask-side order is recorded as the maker
// and the bid-side order as the taker, whichever of the two arrived last.
type Fill struct {
	// TradeID is the unique identifier for this execution, assigned by
	// the engine.
	TradeID uint64

	// MakerOrderUID is the UID of the ask-side order.
	MakerOrderUID string

	// TakerOrderUID is the UID of the bid-side order.
	TakerOrderUID string

	// Price is the execution price in cents: the price of the ask level.
	Price int64

	// Quantity is the number of shares executed.
	Quantity int64

	// Timestamp is when the fill occurred.
	Timestamp int64

	// Symbol is the stock ticker.
	Symbol string

	// MakerAccountID is the account of the ask-side order.
	MakerAccountID string

	// TakerAccountID is the account of the bid-side order.
	TakerAccountID string

	// TakerSide indicates whether the taker was buying or selling; fills
	// produced by orderbook.Book always carry SideBuy.
	TakerSide Side
}

// String returns a human-readable representation of the fill.
func (f *Fill) String() string {
	return fmt.Sprintf("Fill{Trade:%d, %d shares@%s, Maker:%s, Taker:%s}",
		f.TradeID, f.Quantity, FormatPrice(f.Price), f.MakerOrderUID, f.TakerOrderUID)
}

// Trade represents a completed trade from the perspective of reporting and
// settlement. It combines information from both sides of the execution.
type Trade struct {
	ID            uint64
	Symbol        string
	Price         int64
	Quantity      int64
	BuyOrderUID   string
	SellOrderUID  string
	BuyerAccount  string
	SellerAccount string
	Timestamp     int64
	SequenceNum   uint64
}

// ExecutionResult contains the outcome of processing an incoming order.
type ExecutionResult struct {
	// Order is the processed order with updated Shares and Status.
	Order *Order

	// Fills contains all executions that occurred.
	Fills []Fill

	// Accepted indicates if the order was accepted into the system.
	Accepted bool

	// RejectReason explains why the order was rejected (if applicable).
	RejectReason string

	// RestingQty is the quantity left on the book after matching (0 if
	// fully filled).
	RestingQty int64
}

// FormatPrice converts a price in cents to a dollar string.
func FormatPrice(cents int64) string {
	dollars := cents / 100
	remaining := cents % 100
	if remaining < 0 {
		remaining = -remaining
	}
	return fmt.Sprintf("$%d.%02d", dollars, remaining)
}

// ParsePrice converts a dollar amount to cents. For example, 150.25
// becomes 15025.
func ParsePrice(dollars float64) int64 {
	return int64(dollars*100 + 0.5)
}

// Now returns the current time in nanoseconds since epoch. This is an
// ambient clock source for the HTTP gateway; the line-oriented feed never
// calls it — every add/reduce event carries its own timestamp.
func Now() int64 {
	return time.Now().UnixNano()
}
