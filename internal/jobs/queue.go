// Package jobs provides the bounded ingestion task queue and its worker loop.
package jobs

import (
	"github.com/eachPassingDay/ainote/internal/domain"
)

// Task is one note waiting for background processing
type Task struct {
	NoteID  string
	Title   string
	Content string
}

// Queue is a bounded in-process task queue. Enqueue never blocks: when the
// buffer is full the caller gets ErrQueueFull and decides what to tell the
// client. The note itself is already persisted at that point.
type Queue struct {
	tasks chan Task
}

// DefaultCapacity bounds the queue when no capacity is configured
const DefaultCapacity = 64

// NewQueue creates a queue with the given capacity
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{tasks: make(chan Task, capacity)}
}

// Enqueue adds a task without blocking
func (q *Queue) Enqueue(task Task) error {
	select {
	case q.tasks <- task:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Tasks exposes the consumer side of the queue
func (q *Queue) Tasks() <-chan Task {
	return q.tasks
}

// Len returns the number of queued tasks
func (q *Queue) Len() int {
	return len(q.tasks)
}
