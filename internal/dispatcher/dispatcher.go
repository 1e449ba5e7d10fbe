// Package dispatcher runs jobs serially per key and concurrently across keys.
package dispatcher

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("dispatcher is closed")

type queue struct {
	jobs []func()
}

// Dispatcher keeps one FIFO queue per key. A queue is drained by a single
// goroutine that exits once the queue is empty, so idle keys cost nothing.
// The mutex only guards the queue map and is never held while a job runs.
type Dispatcher[K comparable] struct {
	mu     sync.Mutex
	queues map[K]*queue
	closed bool
	wg     sync.WaitGroup
}

func New[K comparable]() *Dispatcher[K] {
	return &Dispatcher[K]{queues: make(map[K]*queue)}
}

// Submit appends job to key's queue. Jobs for the same key run one at a time
// in submission order.
func (d *Dispatcher[K]) Submit(key K, job func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if q, ok := d.queues[key]; ok {
		q.jobs = append(q.jobs, job)
		return nil
	}

	q := &queue{jobs: []func(){job}}
	d.queues[key] = q
	d.wg.Add(1)
	go d.drain(key, q)
	return nil
}

func (d *Dispatcher[K]) drain(key K, q *queue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		job()
	}
}

// Pending reports the number of keys with queued or running jobs.
func (d *Dispatcher[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher[K]) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
