package referee

// Ring is a fixed-capacity FIFO that overwrites its oldest element when
// full. The backing slice is allocated once.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int   { return r.size }
func (r *Ring[T]) Cap() int   { return len(r.buf) }
func (r *Ring[T]) Full() bool { return r.size == len(r.buf) }

// At returns the i-th element, oldest first.
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Oldest and Newest panic on an empty ring.
func (r *Ring[T]) Oldest() T { return r.At(0) }
func (r *Ring[T]) Newest() T { return r.At(r.size - 1) }

func (r *Ring[T]) Clear() {
	r.start, r.size = 0, 0
}

// HoldingWindow is a sliding boolean window counting how many of the last
// Cap() ticks had the ball held.
type HoldingWindow struct {
	ring *Ring[bool]
	held int
}

func NewHoldingWindow(ticks int) *HoldingWindow {
	return &HoldingWindow{ring: NewRing[bool](ticks)}
}

// Push records one tick.
func (w *HoldingWindow) Push(held bool) {
	if w.ring.Full() && w.ring.Oldest() {
		w.held--
	}
	w.ring.Push(held)
	if held {
		w.held++
	}
}

// Violated reports a full window held for at least ratio of its ticks.
func (w *HoldingWindow) Violated(ratio float64) bool {
	return w.ring.Full() && float64(w.held) >= ratio*float64(w.ring.Cap())
}

func (w *HoldingWindow) Held() int { return w.held }
func (w *HoldingWindow) Size() int { return w.ring.Cap() }

func (w *HoldingWindow) Clear() {
	w.ring.Clear()
	w.held = 0
}
