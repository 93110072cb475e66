package jobs

import (
	"context"
	"log"
	"sync"
)

// TaskHandler processes one queued task
type TaskHandler interface {
	ProcessTask(ctx context.Context, task Task) error
}

// Worker consumes the queue with a fixed number of goroutines
type Worker struct {
	queue    *Queue
	handler  TaskHandler
	count    int
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a Worker. count <= 0 means a single consumer.
func NewWorker(queue *Queue, handler TaskHandler, count int) *Worker {
	if count <= 0 {
		count = 1
	}
	return &Worker{
		queue:    queue,
		handler:  handler,
		count:    count,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the consumers and blocks until they stop
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	log.Printf("Worker started with %d consumer(s)", w.count)

	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	log.Println("Worker stopped")
}

func (w *Worker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case task := <-w.queue.Tasks():
			w.process(ctx, task)
		}
	}
}

// process runs one task, containing panics so a bad task cannot take the
// consumer down
func (w *Worker) process(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic processing note %s: %v", task.NoteID, r)
		}
	}()

	if err := w.handler.ProcessTask(ctx, task); err != nil {
		log.Printf("Error processing note %s: %v", task.NoteID, err)
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("Worker shutdown complete")
}
