// Package input carries discrete input events from the presentation loop to
// the entry points units export for them.
package input

import (
	"fmt"
	"sync"
)

// Kind is the event code passed as the first argument of a mouse entry point.
type Kind int32

const (
	MouseMove Kind = 0
	MouseDown Kind = 1
	MouseUp   Kind = 2
	KeyDown   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case MouseMove:
		return "move"
	case MouseDown:
		return "down"
	case MouseUp:
		return "up"
	case KeyDown:
		return "key"
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// IsMouse reports whether k is delivered to mouse entry points.
func (k Kind) IsMouse() bool {
	return k == MouseMove || k == MouseDown || k == MouseUp
}

// Event is one input event. X and Y are in canvas space for mouse events;
// Key carries the key code of KeyDown events.
type Event struct {
	Kind Kind
	X    int32
	Y    int32
	Key  int32
}

// Mouse creates a mouse event.
func Mouse(k Kind, x, y int32) Event {
	return Event{Kind: k, X: x, Y: y}
}

// Key creates a key-down event.
func Key(code int32) Event {
	return Event{Kind: KeyDown, Key: code}
}

// Canvas places the canvas inside a screen whose y axis grows downwards.
// Canvas coordinates grow upwards from the canvas origin.
type Canvas struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// FromScreen converts a screen position into canvas space.
func (c Canvas) FromScreen(x, y, screenHeight int32) (int32, int32) {
	return x - c.X, screenHeight - y - c.Y
}

// Contains reports whether a canvas-space point lies on the canvas.
func (c Canvas) Contains(x, y int32) bool {
	return x >= 0 && y >= 0 && x < c.Width && y < c.Height
}

// Queue is a FIFO of events filled by the presentation loop and drained by
// the driver once per tick. Queue is safe for concurrent use.
type Queue struct {
	events []Event
	mu     sync.Mutex
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends events.
func (q *Queue) Push(events ...Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, events...)
}

// Drain removes and returns every queued event in arrival order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
