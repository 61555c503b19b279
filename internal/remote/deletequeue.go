package remote

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DeleteSpacing is the minimum interval between two delete calls. The
// service throttles deletions far more aggressively than creations, and a
// burst of deletes against the same document corrupts sibling indices.
const DeleteSpacing = 350 * time.Millisecond

var (
	deleteQueueOnce      sync.Once
	deleteQueueSingleton *DeleteQueue
)

// DeleteQueue serializes delete operations process-wide and spaces them out.
// Every deletion, whatever document it targets, must go through the queue.
type DeleteQueue struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewDeleteQueue(spacing time.Duration) *DeleteQueue {
	return &DeleteQueue{
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}
}

// CurrentDeleteQueue returns the process-wide queue.
func CurrentDeleteQueue() *DeleteQueue {
	deleteQueueOnce.Do(func() {
		deleteQueueSingleton = NewDeleteQueue(DeleteSpacing)
	})
	return deleteQueueSingleton
}

// Run executes one delete operation, waiting for its turn and for the
// rate limiter. Operations never run concurrently.
func (q *DeleteQueue) Run(ctx context.Context, op func(ctx context.Context) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}
