// Package window provides a bounded FIFO of closed bars. When full, pushing
// a bar evicts the oldest one. The window is owned by a single goroutine
// (the engine loop) and is not safe for concurrent use.
package window

import "trendbot/internal/model"

// Window is a fixed-capacity ring of bars, oldest evicted first.
type Window struct {
	buf   []model.Bar
	head  int // index of the oldest bar
	count int

	evicted uint64
}

// New creates a window holding at most capacity bars. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Bar, capacity)}
}

// Push appends b, evicting the oldest bar when the window is full.
func (w *Window) Push(b model.Bar) {
	if w.count == len(w.buf) {
		w.buf[w.head] = b
		w.head = (w.head + 1) % len(w.buf)
		w.evicted++
		return
	}
	w.buf[(w.head+w.count)%len(w.buf)] = b
	w.count++
}

// Len returns the number of bars held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Evicted returns the total number of bars dropped off the front.
func (w *Window) Evicted() uint64 { return w.evicted }

// Last returns the newest bar, or false when empty.
func (w *Window) Last() (model.Bar, bool) {
	if w.count == 0 {
		return model.Bar{}, false
	}
	return w.buf[(w.head+w.count-1)%len(w.buf)], true
}

// Slice returns a copy of the bars ordered oldest to newest.
func (w *Window) Slice() []model.Bar {
	out := make([]model.Bar, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Reset drops every bar. The eviction counter is kept.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = model.Bar{}
	}
}
