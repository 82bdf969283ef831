package events

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrPublishBackpressure = errors.New("event publisher backpressure: buffer is full")
	ErrPublisherClosed     = errors.New("batching publisher is closed")
)

type BatchingConfig struct {
	MaxBatchSize       int
	FlushInterval      time.Duration
	FlushTimeout       time.Duration
	QueueCapacity      int
	MaxInFlightBatches int
}

// BatchPublisher is implemented by publishers that can write several events
// in one round trip.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, batch []DistributionEvent) error
}

type publishRequest struct {
	ctx    context.Context
	event  DistributionEvent
	result chan error
}

// BatchingPublisher groups events published close together into one write
// and bounds how many may be buffered.
type BatchingPublisher struct {
	base        Publisher
	batchWriter BatchPublisher

	in         chan publishRequest
	semaphore  chan struct{}
	stop       chan struct{}
	done       chan struct{}
	closeOnce sync.Once
	config    BatchingConfig
}

// NewBatchingPublisher starts the flush loop. It runs until Close, so events
// published while the server drains in-flight requests still reach base.
func NewBatchingPublisher(base Publisher, cfg BatchingConfig) *BatchingPublisher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 25 * time.Millisecond
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 3 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.MaxInFlightBatches <= 0 {
		cfg.MaxInFlightBatches = 2
	}

	publisher := &BatchingPublisher{
		base:      base,
		in:        make(chan publishRequest, cfg.QueueCapacity),
		semaphore: make(chan struct{}, cfg.MaxInFlightBatches),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		config:    cfg,
	}
	if writer, ok := base.(BatchPublisher); ok {
		publisher.batchWriter = writer
	}

	go publisher.run()
	return publisher
}

// Publish blocks until the batch holding event is written or ctx is done.
func (b *BatchingPublisher) Publish(ctx context.Context, event DistributionEvent) error {
	request := publishRequest{
		ctx:    ctx,
		event:  event,
		result: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrPublisherClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrPublisherClosed
	case b.in <- request:
	default:
		return ErrPublishBackpressure
	}

	select {
	case err := <-request.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered events and stops the background loop.
func (b *BatchingPublisher) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
}

func (b *BatchingPublisher) run() {
	defer close(b.done)

	pending := make([]publishRequest, 0, b.config.MaxBatchSize)
	timer := time.NewTimer(b.config.FlushInterval)
	stopTimer(timer)
	timerRunning := false

	flush := func(final bool) {
		if len(pending) == 0 {
			return
		}
		batch := append([]publishRequest(nil), pending...)
		pending = pending[:0]
		b.flushBatch(batch, final)
	}

	for {
		var timerCh <-chan time.Time
		if timerRunning {
			timerCh = timer.C
		}

		select {
		case <-b.stop:
			stopTimer(timer)
			b.drain(&pending)
			flush(true)
			return
		case <-timerCh:
			timerRunning = false
			flush(false)
		case request := <-b.in:
			if err := request.ctx.Err(); err != nil {
				request.result <- err
				continue
			}
			pending = append(pending, request)
			if len(pending) == 1 {
				timer.Reset(b.config.FlushInterval)
				timerRunning = true
			}
			if len(pending) >= b.config.MaxBatchSize {
				stopTimer(timer)
				timerRunning = false
				flush(false)
			}
		}
	}
}

// drain moves requests accepted before shutdown into pending.
func (b *BatchingPublisher) drain(pending *[]publishRequest) {
	for {
		select {
		case request := <-b.in:
			*pending = append(*pending, request)
		default:
			return
		}
	}
}

func (b *BatchingPublisher) flushBatch(batch []publishRequest, final bool) {
	active := make([]publishRequest, 0, len(batch))
	for _, request := range batch {
		if err := request.ctx.Err(); err != nil {
			request.result <- err
			continue
		}
		active = append(active, request)
	}
	if len(active) == 0 {
		return
	}

	// stream order follows commit order
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].event.CreatedAt.Before(active[j].event.CreatedAt)
	})

	events := make([]DistributionEvent, 0, len(active))
	for _, request := range active {
		events = append(events, request.event)
	}

	flushCtx := context.Background()
	if !final {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.Background(), b.config.FlushTimeout)
		defer cancel()
	}

	select {
	case b.semaphore <- struct{}{}:
	case <-flushCtx.Done():
		for _, request := range active {
			request.result <- flushCtx.Err()
		}
		return
	}
	defer func() { <-b.semaphore }()

	var publishErr error
	if b.batchWriter != nil {
		publishErr = b.batchWriter.PublishBatch(flushCtx, events)
	} else {
		for _, event := range events {
			if err := b.base.Publish(flushCtx, event); err != nil {
				publishErr = err
				break
			}
		}
	}

	for _, request := range active {
		request.result <- publishErr
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
