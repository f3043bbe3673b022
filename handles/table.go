package handles

import (
	"context"
	"sync"

	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/unit"
)

// Handle addresses a sub-unit in a Table. Handles are dense, start at 0 and
// are never reused.
type Handle uint32

// EventType identifies a table lifecycle event.
type EventType int

const (
	// EventAllocated fires when a handle is bound to a live unit.
	EventAllocated EventType = iota
	// EventReleased fires for every unit closed by Table.Close.
	EventReleased
)

// Event describes a table lifecycle change.
type Event struct {
	Unit   *unit.Unit
	Type   EventType
	Handle Handle
}

// Observer receives table lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnHandleEvent calls f(e).
func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }

// Table is an append-only arena of sub-units addressed by Handle.
// A handle is valid iff its slot holds a unit. Every operation is serialized
// by one mutex, which is never held while guest code runs.
type Table struct {
	units     []*unit.Unit
	observers []Observer
	mu        sync.Mutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Reserve claims the next handle with an empty slot. The slot stays invalid
// until Fill is called.
func (t *Table) Reserve() (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
			Detail("table is closed").
			Build()
	}
	h := Handle(len(t.units))
	t.units = append(t.units, nil)
	return h, nil
}

// Fill binds a reserved handle to u.
func (t *Table) Fill(h Handle, u *unit.Unit) error {
	t.mu.Lock()
	if int(h) >= len(t.units) || t.units[h] != nil || t.closed {
		size := len(t.units)
		t.mu.Unlock()
		return errors.InvalidHandle(uint32(h), size)
	}
	t.units[h] = u
	observers := t.observers
	t.mu.Unlock()

	notify(observers, Event{Type: EventAllocated, Handle: h, Unit: u})
	return nil
}

// Cancel gives back a reserved handle that was never filled. The slot is
// removed when it is the last one, so the next Reserve returns h again.
// Otherwise a later handle is already out and the slot stays permanently
// invalid.
func (t *Table) Cancel(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) != len(t.units)-1 || t.units[h] != nil {
		return
	}
	t.units = t.units[:h]
}

// Allocate appends u and returns its handle.
func (t *Table) Allocate(u *unit.Unit) (Handle, error) {
	h, err := t.Reserve()
	if err != nil {
		return 0, err
	}
	return h, t.Fill(h, u)
}

// Lookup returns the unit addressed by h.
func (t *Table) Lookup(h Handle) (*unit.Unit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) >= len(t.units) || t.units[h] == nil {
		return nil, errors.InvalidHandle(uint32(h), len(t.units))
	}
	return t.units[h], nil
}

// Len returns the number of handles issued, including unfilled ones.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

// Live returns the number of filled slots.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, u := range t.units {
		if u != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every filled slot in handle order until fn returns false.
func (t *Table) Each(fn func(Handle, *unit.Unit) bool) {
	t.mu.Lock()
	units := append([]*unit.Unit(nil), t.units...)
	t.mu.Unlock()

	for i, u := range units {
		if u == nil {
			continue
		}
		if !fn(Handle(i), u) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Close closes every unit and stops accepting handles.
func (t *Table) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	units := t.units
	observers := t.observers
	t.mu.Unlock()

	var firstErr error
	for i, u := range units {
		if u == nil {
			continue
		}
		if err := u.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		notify(observers, Event{Type: EventReleased, Handle: Handle(i), Unit: u})
	}
	return firstErr
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.OnHandleEvent(e)
	}
}
