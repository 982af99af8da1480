package disruptor

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lhoste/lobcore/internal/events"
	"github.com/lhoste/lobcore/internal/matching"
	"github.com/lhoste/lobcore/internal/orders"
)

// EventProcessor processes orders from the ring buffer in a single thread.
//
// Design:
//   - Single goroutine for deterministic, sequential processing
//   - Reads from ring buffer using spin-wait
//   - Calls the matching engine (single-threaded, no locks needed)
//   - Queues events for batched async logging
//   - Sends responses back to HTTP handlers via channels
type EventProcessor struct {
	rb           *RingBuffer
	engine       *matching.Engine
	eventBatcher *EventBatcher
	log          zerolog.Logger
	running      atomic.Bool
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
}

// NewEventProcessor creates a new event processor.
func NewEventProcessor(rb *RingBuffer, engine *matching.Engine, eventLog *events.EventLog, logger zerolog.Logger) *EventProcessor {
	return &EventProcessor{
		rb:           rb,
		engine:       engine,
		eventBatcher: NewEventBatcher(eventLog, 1000, 10), // 1000 events or 10ms
		log:          logger.With().Str("component", "event_processor").Logger(),
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

// Start begins processing events from the ring buffer.
func (p *EventProcessor) Start() {
	p.running.Store(true)
	go p.processLoop()
	go p.eventBatcher.Start()
}

// processLoop is the main event processing loop (single goroutine).
//
// This loop maintains determinism by processing orders sequentially in
// sequence number order. It never uses locks, relying on the
// single-threaded nature for correctness.
func (p *EventProcessor) processLoop() {
	defer close(p.shutdownDone)

	nextSequence := uint64(1) // Start at 1 (0 is initial state)

	for {
		index := nextSequence & p.rb.indexMask
		slot := &p.rb.slots[index]

		// Spin-wait for publisher to finish writing. The slot is ready
		// when its SequenceNum matches our expected sequence.
		for {
			available := atomic.LoadUint64(&slot.SequenceNum)
			if available == nextSequence {
				break
			}

			select {
			case <-p.shutdownCh:
				return
			default:
				runtime.Gosched()
			}
		}

		p.processRequest(slot)

		atomic.StoreUint64(&p.rb.gatingSequence, nextSequence)
		nextSequence++
	}
}

// processRequest processes a single request from the ring buffer.
func (p *EventProcessor) processRequest(slot *RingBufferSlot) {
	req := slot.Request
	responseCh := slot.ResponseCh

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("event processor panic")
			select {
			case responseCh <- &OrderResponse{
				Success: false,
				Error:   fmt.Errorf("internal error: %v", r),
			}:
			default:
			}
		}
	}()

	switch req.Type {
	case RequestTypeNewOrder:
		p.processNewOrder(req, responseCh)
	case RequestTypeReduceOrder:
		p.processReduceOrder(req, responseCh)
	default:
		select {
		case responseCh <- &OrderResponse{
			Success: false,
			Error:   fmt.Errorf("unknown request type: %d", req.Type),
		}:
		default:
		}
	}
}

// processNewOrder processes a new limit order submission.
func (p *EventProcessor) processNewOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	o := req.Order

	result := p.engine.SubmitOrder(o.Symbol, o.UID, o.Side, o.Price, o.Shares, o.Timestamp, o.AccountID, o.ClientOrderID)

	if result.Accepted {
		p.eventBatcher.QueueEvent(&events.NewOrderEvent{
			Event: events.Event{
				Timestamp: orders.Now(),
				Type:      events.EventTypeNewOrder,
			},
			UID:           o.UID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Price:         o.Price,
			Shares:        o.Shares,
			AccountID:     o.AccountID,
			ClientOrderID: o.ClientOrderID,
		})

		for _, fill := range result.Fills {
			p.eventBatcher.QueueEvent(&events.FillEvent{
				Event: events.Event{
					Timestamp: orders.Now(),
					Type:      events.EventTypeFill,
				},
				TradeID:        fill.TradeID,
				Symbol:         fill.Symbol,
				Price:          fill.Price,
				Quantity:       fill.Quantity,
				MakerOrderUID:  fill.MakerOrderUID,
				TakerOrderUID:  fill.TakerOrderUID,
				MakerAccountID: fill.MakerAccountID,
				TakerAccountID: fill.TakerAccountID,
				TakerSide:      fill.TakerSide,
			})
		}
	}

	select {
	case responseCh <- &OrderResponse{
		Success: result.Accepted,
		Result:  result,
		Order:   result.Order,
	}:
	default:
		p.log.Warn().Str("uid", o.UID).Msg("failed to send order response, handler gave up")
	}
}

// processReduceOrder processes a reduce request against a resting order.
func (p *EventProcessor) processReduceOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	err := p.engine.ReduceOrder(req.Symbol, req.UID, req.Delta)

	if err == nil {
		p.eventBatcher.QueueEvent(&events.ReduceOrderEvent{
			Event: events.Event{
				Timestamp: orders.Now(),
				Type:      events.EventTypeReduceOrder,
			},
			UID:    req.UID,
			Symbol: req.Symbol,
			Delta:  req.Delta,
		})
	}

	select {
	case responseCh <- &OrderResponse{
		Success: err == nil,
		Error:   err,
	}:
	default:
		p.log.Warn().Str("uid", req.UID).Msg("failed to send reduce response, handler gave up")
	}
}

// Shutdown gracefully shuts down the event processor.
//
// It stops accepting new requests, drains remaining requests from the
// ring buffer, and ensures all events are flushed to the event log.
func (p *EventProcessor) Shutdown() {
	p.log.Info().Msg("shutting down event processor")

	p.running.Store(false)
	close(p.shutdownCh)

	<-p.shutdownDone

	p.eventBatcher.Shutdown()

	p.log.Info().Msg("event processor shutdown complete")
}
