// Package events defines event types for the event sourcing system.
//
// Event Sourcing Pattern:
// Instead of storing current state, we store all state changes (events).
// Current state can be reconstructed by replaying events from the
// beginning.
//
// Benefits:
//  1. Audit Trail: Complete history of every action (regulatory requirement)
//  2. Replay: Rebuild state after crash by replaying events
//  3. Debugging: Reproduce any bug by replaying to that point
//  4. Time Travel: Query historical state at any point in time
//
// In financial systems, event sourcing is often mandatory for regulatory
// compliance (MiFID II, SEC Rule 613 CAT). This log lives outside the
// matching core per the core's non-goal of any durable log of its own —
// it is a collaborator the engine writes to, not part of orderbook.Book.
package events

import (
	"github.com/lhoste/lobcore/internal/orders"
)

// EventType identifies the type of event.
type EventType uint8

const (
	EventTypeNewOrder EventType = iota + 1
	EventTypeReduceOrder
	EventTypeOrderAccepted
	EventTypeOrderRejected
	EventTypeFill
	EventTypeOrderRetired
)

func (t EventType) String() string {
	switch t {
	case EventTypeNewOrder:
		return "NEW_ORDER"
	case EventTypeReduceOrder:
		return "REDUCE_ORDER"
	case EventTypeOrderAccepted:
		return "ORDER_ACCEPTED"
	case EventTypeOrderRejected:
		return "ORDER_REJECTED"
	case EventTypeFill:
		return "FILL"
	case EventTypeOrderRetired:
		return "ORDER_RETIRED"
	default:
		return "UNKNOWN"
	}
}

// Event is the base event structure. All events share these common
// fields.
type Event struct {
	SequenceNum uint64    // Global sequence number
	Timestamp   int64     // Nanoseconds since epoch
	Type        EventType // Event type
}

// NewOrderEvent represents a new limit order submission.
type NewOrderEvent struct {
	Event
	UID           string
	Symbol        string
	Side          orders.Side
	Price         int64
	Shares        int64
	AccountID     string
	ClientOrderID string
}

// ReduceOrderEvent represents a reduce request against a resting order.
type ReduceOrderEvent struct {
	Event
	UID    string
	Symbol string
	Delta  int64
}

// OrderAcceptedEvent indicates an order was accepted.
type OrderAcceptedEvent struct {
	Event
	UID        string
	Symbol     string
	RestingQty int64 // Quantity added to book (0 if fully filled)
}

// OrderRejectedEvent indicates an order was rejected.
type OrderRejectedEvent struct {
	Event
	UID          string
	Symbol       string
	RejectReason string
}

// FillEvent represents a trade execution.
type FillEvent struct {
	Event
	TradeID        uint64
	Symbol         string
	Price          int64
	Quantity       int64
	MakerOrderUID  string
	TakerOrderUID  string
	MakerAccountID string
	TakerAccountID string
	TakerSide      orders.Side
}

// OrderRetiredEvent indicates a resting order reached zero shares,
// whether by a reduce that consumed the remainder or by matching.
type OrderRetiredEvent struct {
	Event
	UID          string
	Symbol       string
	RetiredShares int64
	Reason       string
}
