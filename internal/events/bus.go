// Package events fans note store changes out to subscribers.
package events

import (
	"sync/atomic"
	"time"

	"github.com/starford/vellum/internal/models"
)

// Kind names a store change.
type Kind string

const (
	DirectoryChanged Kind = "directory.changed"
	NoteCreated      Kind = "note.created"
	NoteUpdated      Kind = "note.updated"
	NoteDeleted      Kind = "note.deleted"
)

// Event is one change notification. Note is a copy and is nil for
// DirectoryChanged.
type Event struct {
	Kind      Kind         `json:"kind"`
	Directory string       `json:"directory,omitempty"`
	Note      *models.Note `json:"note,omitempty"`
	At        time.Time    `json:"at"`
}

// subscriberBuffer is the per-subscriber queue length. A subscriber that
// falls this far behind misses events.
const subscriberBuffer = 64

// Bus broadcasts events to subscribers.
//
// A single goroutine owns the subscriber set; public methods talk to it
// over channels.
type Bus struct {
	subscribeCh   chan chan Event
	unsubscribeCh chan (<-chan Event)
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewBus starts a bus.
func NewBus() *Bus {
	b := &Bus{
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan (<-chan Event)),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)

	// Keyed by the receive-only view handed to the subscriber.
	subs := make(map[<-chan Event]chan Event)
	for {
		select {
		case <-b.stopCh:
			for _, ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			subs[ch] = ch

		case key := <-b.unsubscribeCh:
			if ch, ok := subs[key]; ok {
				delete(subs, key)
				close(ch)
			}

		case ev := <-b.publishCh:
			for _, ch := range subs {
				select {
				case ch <- ev:
				default:
					b.dropped.Add(1)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the bus and closes every subscriber channel.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe returns a new subscriber channel. On a closed bus the channel
// is returned closed.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- sub:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Bus) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Publish queues ev for delivery. It is a no-op on a closed bus.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}
