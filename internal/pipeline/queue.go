package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/meetscribe/ingest-service/internal/observability"
)

// TaskKind names the two background task types.
type TaskKind string

const (
	// TaskTranscribe transcribes one chunk and runs the completion check.
	TaskTranscribe TaskKind = "transcribe"
	// TaskFinalize runs the finalization routine for one session.
	TaskFinalize TaskKind = "finalize"
)

// Task is one unit of background work.
type Task struct {
	Kind       TaskKind
	SessionID  string
	ChunkIndex int
	StorageKey string
}

// Queue buffers tasks between request handlers and the worker pool. The
// queue itself is in-process; durability comes from the session and chunk
// rows, which the janitor sweep re-drives after a crash or a dropped task.
type Queue struct {
	tasks chan Task
}

// NewQueue creates a queue with the given backlog capacity.
func NewQueue(backlog int) *Queue {
	return &Queue{tasks: make(chan Task, backlog)}
}

// Enqueue adds a task without blocking. Workers produce follow-up tasks
// from inside their own handler, so a blocking send on a full backlog
// would let the pool wedge itself. The rows already hold the work, so a
// full queue drops the task and leaves recovery to the janitor sweep.
func (q *Queue) Enqueue(task Task) {
	select {
	case q.tasks <- task:
		observability.SetQueueDepth(len(q.tasks))
	default:
		observability.RecordTaskDropped(string(task.Kind))
		log := observability.GetLogger()
		log.Warn().
			Str("kind", string(task.Kind)).
			Str("session_id", task.SessionID).
			Msg("Task queue full, dropping task")
	}
}

// Len returns the number of waiting tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// RunWorkers pulls tasks with n workers until the context is cancelled.
// Task errors are handled inside handle and never stop the pool.
func (q *Queue) RunWorkers(ctx context.Context, n int, handle func(ctx context.Context, task Task) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case task := <-q.tasks:
					observability.SetQueueDepth(len(q.tasks))
					err := handle(ctx, task)
					observability.RecordTask(string(task.Kind), err)
				}
			}
		})
	}
	return g.Wait()
}
