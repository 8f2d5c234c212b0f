package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	done    chan struct{}
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
	once    sync.Once
}

// NewDebouncer creates a debouncer that emits a batch once delay has passed
// without new events.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 10),
		done:    make(chan struct{}),
		pending: make([]ChangeEvent, 0),
	}
}

// Add queues an event. It never blocks past Stop.
func (d *Debouncer) Add(event ChangeEvent) {
	select {
	case d.events <- event:
	case <-d.done:
	}
}

// Output delivers debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.once.Do(func() {
		close(d.done)
		d.mutex.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mutex.Unlock()
	})
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case <-d.done:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	events := Coalesce(d.pending)
	d.pending = d.pending[:0]
	d.mutex.Unlock()

	if len(events) == 0 {
		return
	}
	select {
	case d.output <- events:
	case <-d.done:
	}
}

// Coalesce keeps one event per path, sorted by path. A file created and then
// written within a batch stays created; one created and then removed within
// a batch is dropped.
func Coalesce(events []ChangeEvent) []ChangeEvent {
	byPath := make(map[string]ChangeEvent, len(events))
	var dropped map[string]bool
	for _, ev := range events {
		prev, seen := byPath[ev.Path]
		switch {
		case !seen:
			if dropped[ev.Path] && !ev.Gone() {
				ev.Type = EventTypeCreated
			}
		case prev.Type == EventTypeCreated && ev.Gone():
			delete(byPath, ev.Path)
			if dropped == nil {
				dropped = make(map[string]bool)
			}
			dropped[ev.Path] = true
			continue
		case prev.Type == EventTypeCreated && ev.Type == EventTypeModified:
			ev.Type = EventTypeCreated
		}
		byPath[ev.Path] = ev
	}

	out := make([]ChangeEvent, 0, len(byPath))
	for _, ev := range byPath {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
