// Package timer implements the TimerService: scheduled delivery of cast
// messages after a delay, cancellable by id, plus a recurring SendEvery
// variant — both driven by plain time.AfterFunc timers (re-armed after each
// recurring fire) rather than a cron expression parser.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// ID identifies a scheduled timer.
type ID string

var seq atomic.Uint64

func newID() ID {
	n := seq.Add(1)
	return ID("timer-" + itoa(n))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type entry struct {
	timer     *time.Timer
	cancelled atomic.Bool
	recurring bool
}

// Service schedules and cancels delayed/recurring cast deliveries.
type Service struct {
	procs *processtable.Table

	mu      sync.Mutex
	pending map[ID]*entry
}

// New creates a TimerService bound to procs.
func New(procs *processtable.Table) *Service {
	return &Service{procs: procs, pending: make(map[ID]*entry)}
}

// SendAfter schedules delivery of castMessage to targetId delayMs from now.
// If the target has terminated before fire time, the fire is silently
// discarded.
func (s *Service) SendAfter(targetID process.ID, castMessage any, delayMs int64) ID {
	return s.schedule(targetID, castMessage, delayMs, false)
}

// SendEvery schedules repeating delivery every intervalMs until cancelled.
func (s *Service) SendEvery(targetID process.ID, castMessage any, intervalMs int64) ID {
	return s.schedule(targetID, castMessage, intervalMs, true)
}

func (s *Service) schedule(targetID process.ID, castMessage any, delayMs int64, recurring bool) ID {
	id := newID()
	e := &entry{recurring: recurring}
	delay := time.Duration(delayMs) * time.Millisecond

	var fire func()
	fire = func() {
		if e.cancelled.Load() {
			return
		}
		if p, ok := s.procs.Lookup(targetID); ok {
			p.CastSilent(castMessage)
		}
		if recurring && !e.cancelled.Load() {
			s.mu.Lock()
			if _, ok := s.pending[id]; ok {
				e.timer = time.AfterFunc(delay, fire)
			}
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
		}
	}
	e.timer = time.AfterFunc(delay, fire)

	s.mu.Lock()
	s.pending[id] = e
	s.mu.Unlock()
	return id
}

// CancelTimer cancels a pending timer. Returns true if it was still pending
// (and is now cancelled), false if it already fired (one-shot) or was
// already cancelled.
func (s *Service) CancelTimer(id ID) bool {
	s.mu.Lock()
	e, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if e.cancelled.Swap(true) {
		return false
	}
	e.timer.Stop()
	return true
}
