// Package matching hosts the multi-symbol engine: one orderbook.Book per
// tradable instrument, plus the process-local sequence numbering and
// trade-tape fan-out that sit around the single-instrument core.
//
// Architecture: Single-Threaded Core (LMAX Disruptor Pattern)
//
// Why single-threaded?
//  1. Determinism: Same input sequence always produces same output.
//  2. No locks: Eliminates contention in the hot path.
//  3. Replay: Can rebuild state by replaying the event log.
//  4. Simplicity: No race conditions to debug.
//
// Each orderbook.Book is itself single-threaded and synchronous (see
// orderbook.Book's doc comment); the Engine's job is routing by symbol
// and assigning the ambient sequence numbers used for replay, not
// matching itself.
package matching

import (
	"fmt"
	"sync/atomic"

	"github.com/lhoste/lobcore/internal/orderbook"
	"github.com/lhoste/lobcore/internal/orders"
)

// Engine fans incoming orders out to one orderbook.Book per symbol.
//
// Thread Safety: SubmitOrder/ReduceOrder must only be called from a single
// goroutine at a time. External synchronization is handled by the
// sequencer/ring buffer that feeds events to the engine (see
// internal/disruptor).
type Engine struct {
	books       map[string]*orderbook.Book
	sequenceNum uint64

	// OnTrade, if set, is invoked once per execution produced by any
	// symbol's book, in addition to whatever that call's own
	// ExecutionResult.Fills reports. cmd/server wires it to the clearing
	// house, risk checker, metrics and market data publisher.
	OnTrade func(orders.Fill)
}

// NewEngine creates a new matching engine with no symbols registered.
func NewEngine() *Engine {
	return &Engine{books: make(map[string]*orderbook.Book)}
}

// AddSymbol registers a new tradable symbol, creating its book if it
// doesn't already exist.
func (e *Engine) AddSymbol(symbol string) {
	if _, exists := e.books[symbol]; !exists {
		e.books[symbol] = orderbook.NewBook(symbol)
	}
}

// Book returns the order book for a symbol, or nil if unregistered.
func (e *Engine) Book(symbol string) *orderbook.Book {
	return e.books[symbol]
}

// Symbols returns all registered tradable symbols.
func (e *Engine) Symbols() []string {
	symbols := make([]string, 0, len(e.books))
	for s := range e.books {
		symbols = append(symbols, s)
	}
	return symbols
}

func (e *Engine) nextSequence() uint64 {
	return atomic.AddUint64(&e.sequenceNum, 1)
}

// SubmitOrder submits a new limit order to symbol's book and runs its
// match loop, returning the outcome. Only limit orders exist in this
// engine — there is no market/IOC/FOK order type to special-case.
func (e *Engine) SubmitOrder(symbol, uid string, side orders.Side, price, shares, timestamp int64, accountID, clientOrderID string) *orders.ExecutionResult {
	result := &orders.ExecutionResult{Fills: make([]orders.Fill, 0)}

	book := e.books[symbol]
	if book == nil {
		result.RejectReason = fmt.Sprintf("unknown symbol: %s", symbol)
		return result
	}
	if timestamp == 0 {
		timestamp = orders.Now()
	}

	seq := e.nextSequence()

	var fills []orders.Fill
	prevHook := book.OnTrade
	book.OnTrade = func(f orders.Fill) {
		fills = append(fills, f)
		if e.OnTrade != nil {
			e.OnTrade(f)
		}
	}
	order, err := book.AddOrderWithMeta(uid, timestamp, shares, price, side == orders.SideBuy, accountID, clientOrderID)
	book.OnTrade = prevHook

	if err != nil {
		result.RejectReason = err.Error()
		return result
	}

	order.SequenceNum = seq
	result.Order = order
	result.Accepted = true
	result.Fills = fills
	result.RestingQty = order.Shares

	switch {
	case order.Shares == 0:
		order.Status = orders.OrderStatusFilled
	case len(fills) > 0:
		order.Status = orders.OrderStatusPartiallyFilled
	default:
		order.Status = orders.OrderStatusNew
	}

	return result
}

// ReduceOrder reduces a resting order's shares on symbol's book, running
// the match loop afterward (a reduce can drop the inside through to a
// new level, which does not itself cause a cross, but the core always
// invokes the match loop after any mutating call per §4.4).
func (e *Engine) ReduceOrder(symbol, uid string, delta int64) error {
	book := e.books[symbol]
	if book == nil {
		return fmt.Errorf("unknown symbol: %s", symbol)
	}

	var fills []orders.Fill
	prevHook := book.OnTrade
	book.OnTrade = func(f orders.Fill) {
		fills = append(fills, f)
		if e.OnTrade != nil {
			e.OnTrade(f)
		}
	}
	err := book.ReduceOrder(uid, delta)
	book.OnTrade = prevHook
	return err
}

// PositionOf returns uid's one-based FIFO position within its resting
// level on symbol's book.
func (e *Engine) PositionOf(symbol, uid string) (int, error) {
	book := e.books[symbol]
	if book == nil {
		return 0, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return book.PositionOf(uid)
}
