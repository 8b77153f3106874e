// Package timerleak tracks outstanding timers and warns about ones that have
// been alive for too long.
package timerleak

import (
	"sync"
	"time"
)

// TimerID identifies a scheduled timer. Zero is never issued.
type TimerID uint64

// Timers is the scheduling surface code should use instead of calling
// time.AfterFunc or time.NewTicker directly.
type Timers interface {
	SetTimeout(d time.Duration, fn func()) TimerID
	SetInterval(d time.Duration, fn func()) TimerID
	ClearTimeout(id TimerID)
	ClearInterval(id TimerID)
}

type runtimeTimer struct {
	timer *time.Timer
	stop  chan struct{}
}

// runtimeTimers is the plain implementation backed by the time package.
type runtimeTimers struct {
	mu     sync.Mutex
	nextID TimerID
	timers map[TimerID]*runtimeTimer
}

// NewRuntimeTimers returns a Timers backed by time.AfterFunc and time.Ticker.
func NewRuntimeTimers() Timers {
	return newRuntimeTimers()
}

func newRuntimeTimers() *runtimeTimers {
	return &runtimeTimers{timers: make(map[TimerID]*runtimeTimer)}
}

func (r *runtimeTimers) SetTimeout(d time.Duration, fn func()) TimerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.timers[id] = &runtimeTimer{
		timer: time.AfterFunc(d, func() {
			r.mu.Lock()
			_, live := r.timers[id]
			delete(r.timers, id)
			r.mu.Unlock()
			if live {
				fn()
			}
		}),
	}
	return id
}

func (r *runtimeTimers) SetInterval(d time.Duration, fn func()) TimerID {
	if d <= 0 {
		d = time.Millisecond
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	stop := make(chan struct{})
	r.timers[id] = &runtimeTimer{stop: stop}

	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return id
}

func (r *runtimeTimers) ClearTimeout(id TimerID) {
	r.clear(id)
}

func (r *runtimeTimers) ClearInterval(id TimerID) {
	r.clear(id)
}

// clear is a no-op for zero, unknown or already fired ids.
func (r *runtimeTimers) clear(id TimerID) bool {
	if id == 0 {
		return false
	}
	r.mu.Lock()
	t, ok := r.timers[id]
	delete(r.timers, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.stop != nil {
		close(t.stop)
	}
	return true
}
