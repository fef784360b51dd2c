package messaging

import (
	"context"
	"errors"
	"sync"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

// Sink receives controller telemetry.
type Sink interface {
	PublishStage(stage types.Stage) error
	PublishCalibration(bounds []axis.Bounds) error
	PublishSnapshot(s types.Snapshot) error
}

var ErrQueueFull = errors.New("telemetry queue full")

type message struct {
	stage    *types.Stage
	bounds   []axis.Bounds
	snapshot *types.Snapshot
}

// Fanout forwards telemetry to every sink from a single worker goroutine
// so slow sinks never stall the control loop. Messages that do not fit
// the queue are dropped.
type Fanout struct {
	sinks  []Sink
	queue  chan message
	logger *logger.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFanout(queueSize int, l *logger.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  sinks,
		queue:  make(chan message, queueSize),
		logger: l,
	}
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (f *Fanout) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				f.drain()
				return
			case msg := <-f.queue:
				f.deliver(msg)
			}
		}
	}()
}

// Stop delivers what is still queued, then ends the worker. It does not
// depend on the parent context, so it also works after a fatal loop error.
func (f *Fanout) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *Fanout) drain() {
	for {
		select {
		case msg := <-f.queue:
			f.deliver(msg)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(msg message) {
	for _, sink := range f.sinks {
		var err error
		switch {
		case msg.stage != nil:
			err = sink.PublishStage(*msg.stage)
		case msg.snapshot != nil:
			err = sink.PublishSnapshot(*msg.snapshot)
		default:
			err = sink.PublishCalibration(msg.bounds)
		}
		if err != nil {
			f.logger.Debugf("Telemetry sink %T failed: %v", sink, err)
		}
	}
}

func (f *Fanout) enqueue(msg message) error {
	select {
	case f.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (f *Fanout) PublishStage(stage types.Stage) error {
	return f.enqueue(message{stage: &stage})
}

func (f *Fanout) PublishCalibration(bounds []axis.Bounds) error {
	return f.enqueue(message{bounds: append([]axis.Bounds(nil), bounds...)})
}

func (f *Fanout) PublishSnapshot(s types.Snapshot) error {
	return f.enqueue(message{snapshot: &s})
}
