package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedRecorder struct {
	mu  sync.Mutex
	ids []string
	ch  chan string
}

func newFiredRecorder() *firedRecorder {
	return &firedRecorder{ch: make(chan string, 16)}
}

func (r *firedRecorder) fire(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.ch <- id
}

func (r *firedRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestTimerArenaFiresOnce(t *testing.T) {
	rec := newFiredRecorder()
	arena := NewTimerArena(rec.fire, nil)

	require.True(t, arena.Arm("job-1", time.Now().Add(10*time.Millisecond)))
	assert.False(t, arena.Arm("job-1", time.Now()))
	assert.Equal(t, 1, arena.Len())

	select {
	case id := <-rec.ch:
		assert.Equal(t, "job-1", id)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return arena.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestTimerArenaPastInstantFiresImmediately(t *testing.T) {
	rec := newFiredRecorder()
	arena := NewTimerArena(rec.fire, nil)

	arena.Arm("late", time.Now().Add(-time.Hour))
	select {
	case id := <-rec.ch:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("overdue timer did not fire")
	}
}

func TestTimerArenaCancel(t *testing.T) {
	rec := newFiredRecorder()
	arena := NewTimerArena(rec.fire, nil)

	arena.Arm("job-1", time.Now().Add(30*time.Millisecond))
	assert.True(t, arena.Armed("job-1"))
	assert.True(t, arena.Cancel("job-1"))
	assert.False(t, arena.Cancel("job-1"))
	assert.False(t, arena.Armed("job-1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestTimerArenaStop(t *testing.T) {
	rec := newFiredRecorder()
	arena := NewTimerArena(rec.fire, nil)

	arena.Arm("a", time.Now().Add(20*time.Millisecond))
	arena.Arm("b", time.Now().Add(20*time.Millisecond))
	arena.Stop()
	assert.Equal(t, 0, arena.Len())
	assert.False(t, arena.Arm("c", time.Now()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
