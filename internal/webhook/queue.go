package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when no more deliveries can be buffered.
var ErrQueueFull = errors.New("run queue is full")

// Run states reported for deliveries that have not landed in history.
const (
	StateQueued   = "queued"
	StateRunning  = "running"
	StateFinished = "finished"
	StateErrored  = "errored"
)

// retainedStates bounds how many finished or errored ids keep a state entry.
// Older ids are answered from history.
const retainedStates = 256

// RunFunc executes one queued delivery under the given run id.
type RunFunc func(ctx context.Context, id string, d Delivery) error

type queued struct {
	id       string
	delivery Delivery
}

// Queue executes submitted deliveries one at a time in arrival order.
type Queue struct {
	run    RunFunc
	jobs   chan queued
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]string
	done   []string
	retain int
}

var _ Submitter = (*Queue)(nil)

// NewQueue creates a queue buffering up to size pending deliveries.
func NewQueue(run RunFunc, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{
		run:    run,
		jobs:   make(chan queued, size),
		logger: logger,
		states: map[string]string{},
		retain: retainedStates,
	}
}

// Submit enqueues d and returns the run id it will execute under.
func (q *Queue) Submit(_ context.Context, d Delivery) (string, error) {
	id := uuid.NewString()
	q.setState(id, StateQueued)
	select {
	case q.jobs <- queued{id: id, delivery: d}:
		return id, nil
	default:
		q.mu.Lock()
		delete(q.states, id)
		q.mu.Unlock()
		return "", ErrQueueFull
	}
}

// State reports the queue's view of a run id.
func (q *Queue) State(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.states[id]
	return s, ok
}

// Start processes deliveries until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.jobs:
			q.setState(job.id, StateRunning)
			q.logger.Info("run starting", "run_id", job.id, "event", job.delivery.Event.Kind, "branch", job.delivery.Event.Branch)
			if err := q.run(ctx, job.id, job.delivery); err != nil {
				q.logger.Error("run errored", "run_id", job.id, "error", err)
				q.complete(job.id, StateErrored)
				continue
			}
			q.complete(job.id, StateFinished)
		}
	}
}

func (q *Queue) setState(id, state string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states[id] = state
}

// complete records a terminal state and evicts the oldest terminal ids past
// the retention limit.
func (q *Queue) complete(id, state string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states[id] = state
	q.done = append(q.done, id)
	for len(q.done) > q.retain {
		delete(q.states, q.done[0])
		q.done = q.done[1:]
	}
}
