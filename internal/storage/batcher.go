package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// batcher buffers events and hands them to flush in batches from a single
// background goroutine.
type batcher struct {
	buffer  chan *DecisionEvent
	done    chan struct{}
	flushed chan struct{}
	flush   func([]*DecisionEvent)
	logger  *zap.Logger

	interval time.Duration
	maxBatch int
}

func newBatcher(size int, interval time.Duration, maxBatch int, flush func([]*DecisionEvent), logger *zap.Logger) *batcher {
	b := &batcher{
		buffer:   make(chan *DecisionEvent, size),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		flush:    flush,
		logger:   logger,
		interval: interval,
		maxBatch: maxBatch,
	}
	go b.loop()
	return b
}

// Write queues an event. Non-blocking: drops the event if the buffer is full.
func (b *batcher) Write(event *DecisionEvent) {
	select {
	case b.buffer <- event:
	default:
		b.logger.Warn("audit buffer full, dropping event",
			zap.String("decision_id", event.DecisionID),
		)
	}
}

// Close signals the loop to drain remaining events and waits for it.
func (b *batcher) Close() {
	close(b.done)
	<-b.flushed
}

func (b *batcher) loop() {
	defer close(b.flushed)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]*DecisionEvent, 0, b.maxBatch)

	for {
		select {
		case event := <-b.buffer:
			batch = append(batch, event)
			if len(batch) >= b.maxBatch {
				b.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}
		case <-b.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-b.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				b.flush(batch)
			}
			return
		}
	}
}
