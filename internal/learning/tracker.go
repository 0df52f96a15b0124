package learning

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// defaultQueueSize is the buffer size for pending observations.
const defaultQueueSize = 256

// Handler processes one observation.
type Handler func(ctx context.Context, obs Observation)

// Tracker runs advisory learning in the background with non-blocking hand-off.
type Tracker struct {
	handle  Handler
	queue   chan Observation
	stop    chan struct{}
	stopped bool
	once    sync.Once
	wg      sync.WaitGroup
	enabled bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewTracker starts a background worker that calls handle for each tracked observation.
// A queueSize <= 0 selects the default.
func NewTracker(handle Handler, queueSize int, logger *zap.Logger) *Tracker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		handle:  handle,
		queue:   make(chan Observation, queueSize),
		stop:    make(chan struct{}),
		enabled: true,
		logger:  logger,
	}

	t.wg.Add(1)
	go t.process()

	return t
}

// Track queues obs without blocking. It reports false when the tracker is
// disabled, stopped or full; the caller then owns the observation.
func (t *Tracker) Track(obs Observation) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.enabled || t.stopped {
		return false
	}

	select {
	case t.queue <- obs:
		return true
	default:
		t.logger.Warn("learning queue full", zap.String("draft_id", obs.Record.ID))
		return false
	}
}

// Stop drains queued observations and waits for the worker to exit.
func (t *Tracker) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()

		close(t.stop)
		t.wg.Wait()
	})
}

// Disable makes Track refuse new observations.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
}

// Enable re-enables tracking.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
}

// IsEnabled returns whether tracking is enabled.
func (t *Tracker) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Pending returns the number of queued observations.
func (t *Tracker) Pending() int {
	return len(t.queue)
}

func (t *Tracker) process() {
	defer t.wg.Done()

	ctx := context.Background()
	for {
		select {
		case obs := <-t.queue:
			t.handle(ctx, obs)

		case <-t.stop:
			// Track holds the read lock while sending and stopped is set
			// before close, so nothing new arrives after this point.
			for {
				select {
				case obs := <-t.queue:
					t.handle(ctx, obs)
				default:
					return
				}
			}
		}
	}
}
