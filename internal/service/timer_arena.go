package service

import (
	"sync"
	"time"
)

// TimerArena owns the in-process timers of scheduled notification jobs, keyed by job
// id. A timer only hands its id to fire; firing itself happens on the worker queue.
type TimerArena struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	fire    func(jobID string)
	metrics *MetricsService
	now     func() time.Time
	stopped bool
}

// NewTimerArena builds an arena calling fire when a timer elapses.
func NewTimerArena(fire func(jobID string), metrics *MetricsService) *TimerArena {
	return &TimerArena{timers: make(map[string]*time.Timer), fire: fire, metrics: metrics, now: time.Now}
}

// Arm schedules jobID for at. It returns false when the job already has a timer or the
// arena is stopped. Past instants fire immediately.
func (a *TimerArena) Arm(jobID string, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	if _, exists := a.timers[jobID]; exists {
		return false
	}
	delay := at.Sub(a.now())
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		current, ok := a.timers[jobID]
		if !ok || current != timer {
			a.mu.Unlock()
			return
		}
		delete(a.timers, jobID)
		a.publish()
		a.mu.Unlock()
		a.fire(jobID)
	})
	a.timers[jobID] = timer
	a.publish()
	return true
}

// Cancel stops the timer of jobID. It reports whether a timer was armed.
func (a *TimerArena) Cancel(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	timer, ok := a.timers[jobID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(a.timers, jobID)
	a.publish()
	return true
}

// Armed reports whether jobID currently has a timer.
func (a *TimerArena) Armed(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.timers[jobID]
	return ok
}

// Len returns the number of armed timers.
func (a *TimerArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

// Stop disarms every timer and refuses new ones.
func (a *TimerArena) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
	a.stopped = true
	a.publish()
}

// publish must be called with mu held.
func (a *TimerArena) publish() {
	a.metrics.SetArmedTimers(len(a.timers))
}
