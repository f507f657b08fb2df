// Package eventlog exports lifecycle events onto external analytics
// systems: a Recorder subscribes to a processtable.Bus and forwards every
// event to a Sink.
package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// Kind mirrors processtable.EventKind under names meaningful outside the
// runtime package.
type Kind string

const (
	KindStarted        Kind = "started"
	KindTerminated     Kind = "terminated"
	KindChildRestarted Kind = "child_restarted"
	KindProcessDown    Kind = "process_down"
)

// Entry is the flattened, JSON-friendly projection of a processtable.Event
// sent to a Sink.
type Entry struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	ProcessID    string `json:"process_id,omitempty"`
	ReasonKind   string `json:"reason_kind,omitempty"`
	ReasonErr    string `json:"reason_err,omitempty"`
	ReasonDetail string `json:"reason_detail,omitempty"`

	SupervisorID string `json:"supervisor_id,omitempty"`
	ChildID      string `json:"child_id,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`

	Watcher   string `json:"watcher,omitempty"`
	Watched   string `json:"watched,omitempty"`
	MonitorID string `json:"monitor_id,omitempty"`
}

// Sink is a destination for lifecycle events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Entry) error
}

func toEntry(ev processtable.Event, now time.Time) (Entry, bool) {
	e := Entry{OccurredAt: now}
	switch ev.Kind {
	case processtable.EventStarted:
		e.Kind = KindStarted
		e.ProcessID = string(ev.ID)
	case processtable.EventTerminated:
		e.Kind = KindTerminated
		e.ProcessID = string(ev.ID)
		fillReason(&e, ev.Reason)
	case processtable.EventChildRestarted:
		e.Kind = KindChildRestarted
		e.SupervisorID = ev.SupervisorID
		e.ChildID = ev.ChildID
		e.Attempt = ev.Attempt
	case processtable.EventProcessDown:
		e.Kind = KindProcessDown
		e.Watcher = string(ev.Watcher)
		e.Watched = string(ev.Watched)
		e.MonitorID = ev.MonitorID
		fillReason(&e, ev.Reason)
	default:
		return Entry{}, false
	}
	return e, true
}

func fillReason(e *Entry, r process.TerminateReason) {
	e.ReasonKind = r.String()
	e.ReasonDetail = r.Details
	if r.Err != nil {
		e.ReasonErr = r.Err.Error()
	}
}

// Recorder subscribes to a processtable.Bus and forwards every event to a
// Sink, logging (rather than failing) send errors so a down analytics
// backend never affects the runtime it observes.
type Recorder struct {
	sink Sink
	sub  *processtable.Subscriber
	done chan struct{}
}

// NewRecorder starts forwarding bus events to sink until Close is called.
func NewRecorder(bus *processtable.Bus, sink Sink) *Recorder {
	r := &Recorder{sink: sink, sub: bus.Subscribe(), done: make(chan struct{})}
	go r.run()
	return r
}

func (r *Recorder) run() {
	for {
		select {
		case ev, ok := <-r.sub.Events():
			if !ok {
				return
			}
			entry, ok := toEntry(ev, time.Now())
			if !ok {
				continue
			}
			if err := r.sink.Send(context.Background(), entry); err != nil {
				slog.Warn("eventlog: sink send failed", "kind", entry.Kind, "err", err)
			}
		case <-r.done:
			return
		}
	}
}

// Close stops the recorder's forwarding goroutine.
func (r *Recorder) Close() { close(r.done) }
