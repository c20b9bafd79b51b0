// timer/timer.go
package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TimerTask is a scheduled callback. Tasks with an Interval repeat until
// removed.
type TimerTask struct {
	ID       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

// TimerQueue is a min-heap of tasks ordered by execution time.
type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	task := x.(*TimerTask)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}

// TimerManager fires callbacks after a delay, optionally repeating. Callbacks
// run on their own goroutines once Run is active.
type TimerManager struct {
	mutex      sync.Mutex
	queue      TimerQueue
	tasks      map[int64]*TimerTask
	nextID     int64
	resolution time.Duration
	now        func() time.Time
}

// NewTimerManager creates a manager that checks for due timers every
// resolution.
func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	m := &TimerManager{
		queue:      make(TimerQueue, 0),
		tasks:      make(map[int64]*TimerTask),
		nextID:     1,
		resolution: resolution,
		now:        time.Now,
	}
	heap.Init(&m.queue)
	return m
}

// AddTimer schedules callback after delay. A positive interval repeats it.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		ID:       m.nextID,
		Execute:  m.now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextID++

	heap.Push(&m.queue, task)
	m.tasks[task.ID] = task
	return task.ID
}

// RemoveTimer cancels a timer. It reports false if the timer already fired
// or never existed.
func (m *TimerManager) RemoveTimer(timerID int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.tasks[timerID]
	if !ok {
		return false
	}
	heap.Remove(&m.queue, task.index)
	delete(m.tasks, timerID)
	return true
}

// Len returns the number of pending timers.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Run fires due timers until ctx is done.
func (m *TimerManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, callback := range m.due(m.now()) {
				go callback()
			}
		}
	}
}

// due pops the timers whose time has come and reschedules repeating ones.
func (m *TimerManager) due(now time.Time) []func() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var callbacks []func()
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		callbacks = append(callbacks, task.Callback)

		if task.Interval > 0 {
			task.Execute = task.Execute.Add(task.Interval)
			if !task.Execute.After(now) {
				task.Execute = now.Add(task.Interval)
			}
			heap.Push(&m.queue, task)
		} else {
			delete(m.tasks, task.ID)
		}
	}
	return callbacks
}
