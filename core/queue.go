package core

import (
	"sync"

	"github.com/eapache/queue"
)

type TaskItem struct {
	Task   Task
	Traits TaskTraits
}

// TaskQueue defines the admission queue used by TaskScheduler.
type TaskQueue interface {
	Push(t Task, traits TaskTraits)
	Pop() (TaskItem, bool)
	PopUpTo(max int) []TaskItem
	PeekTraits() (TaskTraits, bool)
	Len() int
	IsEmpty() bool
	Drain() []TaskItem // Remove and return all queued tasks
}

// =============================================================================
// FIFOTaskQueue: submission-order admission backed by a ring buffer
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks *queue.Queue
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{
		tasks: queue.New(),
	}
}

func (q *FIFOTaskQueue) Push(t Task, traits TaskTraits) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks.Add(TaskItem{Task: t, Traits: traits})
}

func (q *FIFOTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tasks.Length() == 0 {
		return TaskItem{}, false
	}
	// The ring shrinks itself on Remove, no manual compaction needed.
	return q.tasks.Remove().(TaskItem), true
}

func (q *FIFOTaskQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(q.tasks.Length(), max)
	if n <= 0 {
		return nil
	}

	batch := make([]TaskItem, n)
	for i := range n {
		batch[i] = q.tasks.Remove().(TaskItem)
	}
	return batch
}

func (q *FIFOTaskQueue) PeekTraits() (TaskTraits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tasks.Length() == 0 {
		return TaskTraits{}, false
	}
	return q.tasks.Peek().(TaskItem).Traits, true
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Drain removes all tasks from the queue and returns them in FIFO order.
func (q *FIFOTaskQueue) Drain() []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.tasks.Length()
	if n == 0 {
		return nil
	}
	out := make([]TaskItem, n)
	for i := range n {
		out[i] = q.tasks.Remove().(TaskItem)
	}
	// Fresh ring releases the old buffer and any task references it still holds.
	q.tasks = queue.New()
	return out
}
