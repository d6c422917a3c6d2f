package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/handpilot/internal/logging"
	"go.uber.org/zap"
)

// A failing source is retried after a pause that doubles with each
// consecutive failure, between these bounds. A successful read resets it.
const (
	minBackoff = time.Millisecond
	maxBackoff = 100 * time.Millisecond
)

// ReadFunc blocks until the next frame is available or the read fails.
type ReadFunc[T any] func() (T, error)

// Stats is a snapshot of relay counters.
type Stats struct {
	Frames   uint64 // successful reads
	Failures uint64 // reads that returned an error
	Drops    uint64 // frames overwritten before the consumer took them
}

// Relay runs a producer goroutine that publishes every successful read into a
// Slot, so the consumer always sees the most recent capture.
type Relay[T any] struct {
	read    ReadFunc[T]
	slot    *Slot[T]
	log     *zap.Logger
	running atomic.Bool
	wg      sync.WaitGroup
	mu      sync.Mutex

	frames   atomic.Uint64
	failures atomic.Uint64
}

// New creates a Relay over read. discard releases frames that are dropped.
func New[T any](read ReadFunc[T], discard func(T), log *zap.Logger) *Relay[T] {
	return &Relay[T]{
		read: read,
		slot: NewSlot(discard),
		log:  logging.OrNop(log),
	}
}

// Start launches the capture goroutine. Calling Start on a running relay is a
// no-op.
func (r *Relay[T]) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return
	}

	r.running.Store(true)
	r.wg.Add(1)
	go r.loop()

	r.log.Debug("frame relay started")
}

// Stop clears the running flag and waits for the capture goroutine to exit.
// There is no timeout: a read that never returns keeps Stop waiting. A relay
// backing off from a failing source stops after at most maxBackoff.
func (r *Relay[T]) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Swap(false) {
		return
	}
	r.wg.Wait()

	r.log.Debug("frame relay stopped",
		zap.Uint64("frames", r.frames.Load()),
		zap.Uint64("failures", r.failures.Load()),
		zap.Uint64("drops", r.slot.Drops()))
}

// Running reports whether the capture goroutine has been started and not yet
// told to stop.
func (r *Relay[T]) Running() bool {
	return r.running.Load()
}

// Latest takes the newest frame if one is waiting.
func (r *Relay[T]) Latest() (T, bool) {
	return r.slot.TryTake()
}

// Slot exposes the underlying mailbox.
func (r *Relay[T]) Slot() *Slot[T] {
	return r.slot
}

// Stats returns the current counters.
func (r *Relay[T]) Stats() Stats {
	return Stats{
		Frames:   r.frames.Load(),
		Failures: r.failures.Load(),
		Drops:    r.slot.Drops(),
	}
}

func (r *Relay[T]) loop() {
	defer r.wg.Done()

	var wait time.Duration
	for r.running.Load() {
		frame, err := r.read()
		if err != nil {
			r.failures.Add(1)
			wait = nextBackoff(wait)
			r.log.Debug("frame read failed", zap.Duration("retry_in", wait), zap.Error(err))
			time.Sleep(wait)
			continue
		}
		wait = 0
		r.frames.Add(1)
		r.slot.Put(frame)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d < minBackoff {
		return minBackoff
	}
	return min(2*d, maxBackoff)
}
