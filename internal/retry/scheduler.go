// Package retry schedules deferred delivery re-attempts on a time-ordered
// queue. A single timer goroutine drains the queue, so a large backlog of
// pending retries costs one timer rather than one sleeping goroutine each.
package retry

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatchFunc re-dispatches a delivery when its delay elapses. The dispatcher
// re-checks the delivery's current status and no-ops if it is no longer
// eligible (archived, deleted, already terminal).
type DispatchFunc func(ctx context.Context, tenantID, deliveryID string)

// item is one scheduled re-attempt.
type item struct {
	tenantID   string
	deliveryID string
	at         time.Time
	index      int
}

// delayQueue is a min-heap ordered by fire time.
type delayQueue []*item

func (q delayQueue) Len() int            { return len(q) }
func (q delayQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q delayQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *delayQueue) Push(x any)         { it := x.(*item); it.index = len(*q); *q = append(*q, it) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Scheduler is the time-ordered retry queue.
type Scheduler struct {
	dispatch DispatchFunc
	logger   *slog.Logger

	mu    sync.Mutex
	queue delayQueue
	wake  chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler that calls dispatch when a scheduled delay
// elapses. Call Start to begin draining the queue.
func NewScheduler(dispatch DispatchFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dispatch: dispatch,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Schedule queues a re-dispatch of the given delivery after delay.
func (s *Scheduler) Schedule(tenantID, deliveryID string, delay time.Duration) {
	s.mu.Lock()
	heap.Push(&s.queue, &item{
		tenantID:   tenantID,
		deliveryID: deliveryID,
		at:         time.Now().Add(delay),
	})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.logger.Debug("retry scheduled",
		slog.String("delivery_id", deliveryID),
		slog.Duration("delay", delay),
	)
}

// Start runs the timer loop until Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next := s.peek()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next != nil {
			timer.Reset(time.Until(next.at))
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-s.wake:
			// Queue changed; recompute the next fire time.
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

// peek returns the earliest scheduled item without removing it.
func (s *Scheduler) peek() *item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// fireDue pops and dispatches every item whose time has come.
func (s *Scheduler) fireDue(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].at.After(time.Now()) {
			s.mu.Unlock()
			return
		}
		it := heap.Pop(&s.queue).(*item)
		s.mu.Unlock()

		s.dispatch(ctx, it.tenantID, it.deliveryID)
	}
}

// Stop halts the timer loop and waits for it to exit. Queued items are
// dropped; eligibility is re-checked on dispatch anyway, so an item lost to a
// shutdown simply surfaces as a failed delivery the user can retry.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	<-s.done
}

// Pending returns the number of scheduled items. Test hook.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
