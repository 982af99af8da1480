package disruptor

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lhoste/lobcore/internal/events"
)

// EventBatcher batches events before writing them to the event log.
//
// Design:
//   - Async goroutine that receives events from the processor
//   - Batches events until reaching batch size or timeout
//   - flush writes each event through EventLog.Append, which flushes the
//     buffer and, in sync mode, fsyncs once per event; batching moves the
//     log writes off the processor goroutine but does not reduce the
//     number of fsyncs
type EventBatcher struct {
	eventLog      *events.EventLog
	queue         chan interface{}
	batchSize     int
	flushInterval time.Duration
	shutdownCh    chan struct{}
	shutdownDone  chan struct{}
}

// NewEventBatcher creates a new event batcher.
//
// Parameters:
//   - eventLog: the event log to write batches to
//   - batchSize: number of events to batch before flushing (e.g. 1000)
//   - flushIntervalMs: maximum time to wait before flushing (e.g. 10ms)
func NewEventBatcher(eventLog *events.EventLog, batchSize int, flushIntervalMs int) *EventBatcher {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 10
	}

	return &EventBatcher{
		eventLog:      eventLog,
		queue:         make(chan interface{}, batchSize*2), // 2x buffer for burst handling
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		shutdownCh:    make(chan struct{}),
		shutdownDone:  make(chan struct{}),
	}
}

// Start begins the batching loop.
func (b *EventBatcher) Start() {
	go b.batchLoop()
}

// batchLoop is the main batching goroutine.
func (b *EventBatcher) batchLoop() {
	defer close(b.shutdownDone)

	batch := make([]interface{}, 0, b.batchSize)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-b.queue:
			batch = append(batch, event)
			if len(batch) >= b.batchSize {
				b.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}

		case <-b.shutdownCh:
			if len(batch) > 0 {
				b.flush(batch)
			}
			for {
				select {
				case event := <-b.queue:
					b.eventLog.Append(event)
				default:
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the event log.
func (b *EventBatcher) flush(batch []interface{}) {
	for _, event := range batch {
		if _, err := b.eventLog.Append(event); err != nil {
			log.Error().Err(err).Msg("failed to append event")
		}
	}
}

// QueueEvent queues an event for batched writing. Non-blocking: if the
// queue is full, the event is dropped.
func (b *EventBatcher) QueueEvent(event interface{}) {
	select {
	case b.queue <- event:
	default:
		log.Warn().Type("event_type", event).Msg("event queue full, dropping event")
	}
}

// Shutdown gracefully shuts down the batcher, flushing remaining events.
func (b *EventBatcher) Shutdown() {
	log.Info().Msg("shutting down event batcher")
	close(b.shutdownCh)
	<-b.shutdownDone
	log.Info().Msg("event batcher shutdown complete")
}
