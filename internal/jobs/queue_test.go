package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueAndConsume(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Enqueue(Task{NoteID: "n1"}))
	require.NoError(t, q.Enqueue(Task{NoteID: "n2"}))
	assert.Equal(t, 2, q.Len())

	task := <-q.Tasks()
	assert.Equal(t, "n1", task.NoteID)
}

func TestQueue_FullDoesNotBlock(t *testing.T) {
	q := NewQueue(1)

	require.NoError(t, q.Enqueue(Task{NoteID: "n1"}))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(Task{NoteID: "n2"}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < DefaultCapacity; i++ {
		require.NoError(t, q.Enqueue(Task{}))
	}
	assert.ErrorIs(t, q.Enqueue(Task{}), domain.ErrQueueFull)
}

// recordingHandler collects processed tasks.
type recordingHandler struct {
	mu      sync.Mutex
	tasks   []Task
	err     error
	panicOn string
	seen    chan struct{}
}

func newRecordingHandler(buffer int) *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, buffer)}
}

func (h *recordingHandler) ProcessTask(_ context.Context, task Task) error {
	h.mu.Lock()
	h.tasks = append(h.tasks, task)
	shouldPanic := h.panicOn == task.NoteID
	err := h.err
	h.mu.Unlock()
	defer func() { h.seen <- struct{}{} }()
	if shouldPanic {
		panic("task exploded")
	}
	return err
}

func (h *recordingHandler) processed() []Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Task(nil), h.tasks...)
}

func waitFor(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for task %d", i+1)
		}
	}
}

func TestWorker_ProcessesQueuedTasks(t *testing.T) {
	q := NewQueue(4)
	handler := newRecordingHandler(4)
	worker := NewWorker(q, handler, 1)

	go worker.Start(context.Background())
	defer worker.Stop()

	require.NoError(t, q.Enqueue(Task{NoteID: "n1", Content: "a"}))
	require.NoError(t, q.Enqueue(Task{NoteID: "n2", Content: "b"}))

	waitFor(t, handler.seen, 2)
	tasks := handler.processed()
	require.Len(t, tasks, 2)
	assert.Equal(t, "n1", tasks[0].NoteID)
	assert.Equal(t, "n2", tasks[1].NoteID)
}

func TestWorker_SurvivesHandlerErrorAndPanic(t *testing.T) {
	q := NewQueue(4)
	handler := newRecordingHandler(4)
	handler.err = errors.New("processing failed")
	handler.panicOn = "n1"
	worker := NewWorker(q, handler, 1)

	go worker.Start(context.Background())
	defer worker.Stop()

	require.NoError(t, q.Enqueue(Task{NoteID: "n1"}))
	waitFor(t, handler.seen, 1)

	// A second task still gets processed after the panic
	require.NoError(t, q.Enqueue(Task{NoteID: "n2"}))
	waitFor(t, handler.seen, 1)
	assert.Len(t, handler.processed(), 2)
}

func TestWorker_StopDrainsNothingFurther(t *testing.T) {
	q := NewQueue(4)
	handler := newRecordingHandler(4)
	worker := NewWorker(q, handler, 2)

	go worker.Start(context.Background())
	worker.Stop()

	require.NoError(t, q.Enqueue(Task{NoteID: "late"}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, handler.processed())
}

func TestWorker_ContextCancelStops(t *testing.T) {
	q := NewQueue(4)
	handler := newRecordingHandler(4)
	worker := NewWorker(q, handler, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
