// Package processtable implements the host-wide ProcessTable and the
// internal lifecycle event bus that Registry, LinkTable, MonitorTable and
// Supervisor subscribe to.
package processtable

import (
	"log/slog"

	"github.com/loykin/noex/internal/process"
)

// EventKind tags the lifecycle event union.
type EventKind int

const (
	EventStarted EventKind = iota
	EventTerminated
	EventChildRestarted
	EventProcessDown
)

// Event is the tagged union of lifecycle events flowing through the bus.
type Event struct {
	Kind EventKind

	// EventStarted / EventTerminated
	ID     process.ID
	Reason process.TerminateReason

	// EventChildRestarted
	SupervisorID string
	ChildID      string
	Attempt      int

	// EventProcessDown
	Watcher   process.ID
	Watched   process.ID
	MonitorID string
}

// Subscriber receives events in the order Publish was called. Subscribers
// must not block the publisher: each gets its own buffered queue, filled by
// the bus's single dispatch goroutine, and events for a full queue are dropped.
type Subscriber struct {
	ch     chan Event
	cancel chan struct{}
}

// Events returns the channel events are delivered on.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Bus is a process-internal publisher delivering LifecycleEvents to
// subscribers in insertion order. Grounded on internal/history/history.go's
// Sink fan-out, generalized from a single sink list to independent
// subscriber queues so a slow subscriber cannot block the publisher or
// another subscriber.
type Bus struct {
	subscribers []*subscriberEntry
	subCh       chan *subscriberEntry
	unsubCh     chan *subscriberEntry
	publishCh   chan Event
	stopCh      chan struct{}
}

type subscriberEntry struct {
	sub   *Subscriber
	queue chan Event
}

const subscriberQueueSize = 256

// NewBus starts the bus's dispatch goroutine.
func NewBus() *Bus {
	b := &Bus{
		subCh:     make(chan *subscriberEntry),
		unsubCh:   make(chan *subscriberEntry),
		publishCh: make(chan Event, 64),
		stopCh:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a new subscriber and returns a handle to read events
// and to Unsubscribe.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberQueueSize), cancel: make(chan struct{})}
	entry := &subscriberEntry{sub: sub, queue: sub.ch}
	select {
	case b.subCh <- entry:
	case <-b.stopCh:
	}
	return sub
}

// Unsubscribe removes sub from the bus; safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	entry := &subscriberEntry{sub: sub}
	select {
	case b.unsubCh <- entry:
	case <-b.stopCh:
	}
}

// Publish delivers ev to every current subscriber. Never blocks the caller
// for more than enqueueing onto the bus's own buffered channel.
func (b *Bus) Publish(ev Event) {
	select {
	case b.publishCh <- ev:
	case <-b.stopCh:
	}
}

// Close stops the dispatch goroutine. Subsequent Publish/Subscribe calls are
// no-ops.
func (b *Bus) Close() { close(b.stopCh) }

func (b *Bus) run() {
	for {
		select {
		case <-b.stopCh:
			return
		case entry := <-b.subCh:
			b.subscribers = append(b.subscribers, entry)
		case entry := <-b.unsubCh:
			for i, s := range b.subscribers {
				if s.sub == entry.sub {
					b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
					break
				}
			}
		case ev := <-b.publishCh:
			for _, s := range b.subscribers {
				select {
				case s.queue <- ev:
				default:
					// A stalled subscriber is isolated: drop for it rather
					// than block every other subscriber and the publisher.
					slog.Debug("processtable: subscriber queue full, dropping event", "kind", ev.Kind)
				}
			}
		}
	}
}
