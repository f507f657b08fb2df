// Package supervisor implements the Supervisor: a child spec table in start
// order, restart-strategy application, restart-intensity throttling, and
// ordered shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// Supervisor owns and restarts a set of children according to its declared
// strategy. It behaves like a process with respect to the lifecycle event
// bus: it emits its own terminated event (with MaxRestartsExceeded, or the
// reason passed to Stop) but has no mailbox of its own.
type Supervisor struct {
	id       string
	strategy Strategy
	ri       RestartIntensity

	procs *processtable.Table
	sub   *processtable.Subscriber

	mu               sync.Mutex
	children         []*ChildRecord
	restartTimestamps []time.Time
	stopped          bool
	done             chan struct{}
}

// Start starts every child in spec.Children in declared order, each
// awaiting full initialization before the next begins. If any child's start
// fails, already-started children are stopped in reverse order and Start
// fails with that error.
func Start(procs *processtable.Table, spec Spec) (*Supervisor, error) {
	s := &Supervisor{
		id:       spec.ID,
		strategy: spec.Strategy,
		ri:       spec.RestartIntensity.normalized(),
		procs:    procs,
		done:     make(chan struct{}),
	}

	for _, cs := range spec.Children {
		rec, err := s.startChildSpec(cs)
		if err != nil {
			for i := len(s.children) - 1; i >= 0; i-- {
				s.stopRecord(context.Background(), s.children[i], process.Shutdown())
			}
			return nil, fmt.Errorf("supervisor %s: start child %s: %w", spec.ID, cs.ID, err)
		}
		s.children = append(s.children, rec)
	}

	s.sub = procs.Bus().Subscribe()
	go s.run()
	return s, nil
}

func (s *Supervisor) startChildSpec(cs ChildSpec) (*ChildRecord, error) {
	behavior, config, opts := cs.Start()
	id := process.NewID(cs.ID)
	if _, err := s.procs.SpawnWithID(id, behavior, config, opts...); err != nil {
		return nil, err
	}
	return &ChildRecord{Spec: cs, CurrentProcessID: id}, nil
}

func (s *Supervisor) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.sub.Events():
			if ev.Kind != processtable.EventTerminated {
				continue
			}
			s.onChildTerminated(ev.ID, ev.Reason)
		}
	}
}

func (s *Supervisor) indexOfLocked(id process.ID) int {
	for i, rec := range s.children {
		if rec.CurrentProcessID == id {
			return i
		}
	}
	return -1
}

func (s *Supervisor) onChildTerminated(id process.ID, reason process.TerminateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	idx := s.indexOfLocked(id)
	if idx < 0 {
		return // not (or no longer) one of ours
	}

	rec := s.children[idx]
	restart := rec.Spec.Restart == Permanent || (rec.Spec.Restart == Transient && reason.IsAbnormal())
	if !restart {
		s.children = append(s.children[:idx], s.children[idx+1:]...)
		return
	}

	restartIdxs := s.strategyIdxsLocked(idx)

	now := time.Now()
	s.restartTimestamps = append(s.restartTimestamps, now)
	s.restartTimestamps = pruneWindow(s.restartTimestamps, now, s.ri.WithinMs)
	if len(s.restartTimestamps) > s.ri.MaxRestarts {
		s.giveUpLocked()
		return
	}

	// Stop siblings swept up by the strategy (reverse order), excluding the
	// child that already terminated.
	for i := len(restartIdxs) - 1; i >= 0; i-- {
		ci := restartIdxs[i]
		if ci == idx {
			continue
		}
		s.stopRecord(context.Background(), s.children[ci], process.Shutdown())
	}

	for _, ci := range restartIdxs {
		rec := s.children[ci]
		nb, nc, nopts := rec.Spec.Start()
		newID := process.NewID(rec.Spec.ID)
		if _, err := s.procs.SpawnWithID(newID, nb, nc, nopts...); err != nil {
			slog.Debug("supervisor: restart failed", "supervisor", s.id, "child", rec.Spec.ID, "err", err)
			continue
		}
		rec.CurrentProcessID = newID
		rec.RestartCount++
		rec.RestartTimestamps = append(rec.RestartTimestamps, now)
		s.procs.Bus().Publish(processtable.Event{
			Kind:         processtable.EventChildRestarted,
			SupervisorID: s.id,
			ChildID:      rec.Spec.ID,
			Attempt:      rec.RestartCount,
		})
		metrics.IncSupervisorRestart(s.id, rec.Spec.ID)
	}
}

func (s *Supervisor) strategyIdxsLocked(failedIdx int) []int {
	switch s.strategy {
	case OneForAll:
		idxs := make([]int, len(s.children))
		for i := range s.children {
			idxs[i] = i
		}
		return idxs
	case RestForOne:
		idxs := make([]int, 0, len(s.children)-failedIdx)
		for i := failedIdx; i < len(s.children); i++ {
			idxs = append(idxs, i)
		}
		return idxs
	default: // OneForOne
		return []int{failedIdx}
	}
}

func pruneWindow(ts []time.Time, now time.Time, withinMs int64) []time.Time {
	cutoff := now.Add(-time.Duration(withinMs) * time.Millisecond)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// giveUpLocked stops every remaining child, tears down the supervisor's own
// run loop and bus subscription (mirroring Stop), and emits the supervisor's
// own terminated(MaxRestartsExceeded) event. Caller holds s.mu.
func (s *Supervisor) giveUpLocked() {
	for i := len(s.children) - 1; i >= 0; i-- {
		s.stopRecord(context.Background(), s.children[i], process.Shutdown())
	}
	s.children = nil
	s.stopped = true
	close(s.done)
	s.procs.Bus().Unsubscribe(s.sub)
	metrics.IncSupervisorGiveUp(s.id)
	s.procs.Bus().Publish(processtable.Event{
		Kind:   processtable.EventTerminated,
		ID:     process.ID(s.id),
		Reason: process.Error(ErrMaxRestartsExceeded),
	})
}

// stopRecord stops a single child, enforcing its ShutdownTimeoutMs by
// force-terminating if the graceful stop has not completed in time.
func (s *Supervisor) stopRecord(ctx context.Context, rec *ChildRecord, reason process.TerminateReason) {
	p, ok := s.procs.Lookup(rec.CurrentProcessID)
	if !ok {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, rec.Spec.shutdownTimeout())
	defer cancel()
	if err := p.Stop(tctx, reason); err != nil {
		_ = p.ForceTerminate(context.Background(), reason)
	}
}

// Stop stops every child in reverse start order, each bounded by its own
// ShutdownTimeoutMs, then emits the supervisor's own terminated event.
func (s *Supervisor) Stop(ctx context.Context, reason process.TerminateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	s.procs.Bus().Unsubscribe(s.sub)
	for i := len(s.children) - 1; i >= 0; i-- {
		s.stopRecord(ctx, s.children[i], reason)
	}
	s.children = nil
	s.procs.Bus().Publish(processtable.Event{Kind: processtable.EventTerminated, ID: process.ID(s.id), Reason: reason})
}

// ID returns the supervisor's own id.
func (s *Supervisor) ID() string { return s.id }

// Children returns a snapshot of the current child records in list order.
func (s *Supervisor) Children() []ChildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChildRecord, len(s.children))
	for i, rec := range s.children {
		out[i] = *rec
	}
	return out
}

// StartChild appends and starts a new dynamic child.
func (s *Supervisor) StartChild(cs ChildSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.children {
		if rec.Spec.ID == cs.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateChild, cs.ID)
		}
	}
	rec, err := s.startChildSpec(cs)
	if err != nil {
		return err
	}
	s.children = append(s.children, rec)
	return nil
}

// TerminateChild stops the named child and removes it permanently (it is
// not restarted).
func (s *Supervisor) TerminateChild(ctx context.Context, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.children {
		if rec.Spec.ID == childID {
			s.stopRecord(ctx, rec, process.Shutdown())
			s.children = append(s.children[:i], s.children[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrChildNotFound, childID)
}

// RestartChild stops and restarts a single child out of band, incrementing
// its restart count.
func (s *Supervisor) RestartChild(ctx context.Context, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.children {
		if rec.Spec.ID == childID {
			s.stopRecord(ctx, rec, process.Shutdown())
			nb, nc, nopts := rec.Spec.Start()
			newID := process.NewID(rec.Spec.ID)
			if _, err := s.procs.SpawnWithID(newID, nb, nc, nopts...); err != nil {
				return err
			}
			rec.CurrentProcessID = newID
			rec.RestartCount++
			rec.RestartTimestamps = append(rec.RestartTimestamps, time.Now())
			metrics.IncSupervisorRestart(s.id, childID)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrChildNotFound, childID)
}

// StartChildren starts n identically-shaped children under one supervisor
// in one call; a spec returned by specFn with an empty ID is named
// "<prefix>-<i>" (1-indexed).
func (s *Supervisor) StartChildren(prefix string, n int, specFn func(i int) ChildSpec) error {
	for i := 1; i <= n; i++ {
		cs := specFn(i)
		if cs.ID == "" {
			cs.ID = fmt.Sprintf("%s-%d", prefix, i)
		}
		if err := s.StartChild(cs); err != nil {
			return err
		}
	}
	return nil
}
