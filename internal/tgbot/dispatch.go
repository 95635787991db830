package tgbot

import (
	"log"
	"runtime/debug"
	"sync"
)

// dispatcher runs tasks of one user strictly in arrival order and tasks of different
// users concurrently.
type dispatcher struct {
	mu      sync.Mutex
	queues  map[int64][]func()
	running map[int64]bool
	wg      sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: map[int64][]func(){}, running: map[int64]bool{}}
}

func (d *dispatcher) Do(userID int64, name string, fn func()) {
	d.mu.Lock()
	d.queues[userID] = append(d.queues[userID], fn)
	if d.running[userID] {
		d.mu.Unlock()
		return
	}
	d.running[userID] = true
	d.wg.Add(1)
	d.mu.Unlock()

	safeGo(name, func() {
		defer d.wg.Done()
		for {
			d.mu.Lock()
			q := d.queues[userID]
			if len(q) == 0 {
				delete(d.queues, userID)
				delete(d.running, userID)
				d.mu.Unlock()
				return
			}
			next := q[0]
			d.queues[userID] = q[1:]
			d.mu.Unlock()

			func() {
				defer recoverPanic(name)
				next()
			}()
		}
	})
}

// Wait blocks until every queued task has run.
func (d *dispatcher) Wait() { d.wg.Wait() }

func safeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		log.Printf("💥 PANIC [%s]: %v\n%s", name, r, string(debug.Stack()))
	}
}
