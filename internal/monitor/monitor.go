// Package monitor implements the MonitorTable: one-way, directed monitor
// edges that emit a process_down lifecycle event when the watched process
// terminates.
package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// ID identifies a single monitor edge.
type ID string

var seq atomic.Uint64

func newID() ID {
	n := seq.Add(1)
	return ID("mon-" + itoa(n))
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

type edge struct {
	id             ID
	watcher        process.ID
	watched        process.ID
}

// Table is the arena of monitor edges.
type Table struct {
	mu         sync.Mutex
	edges      map[ID]edge
	byWatched  map[process.ID]map[ID]struct{}
	byWatcher  map[process.ID]map[ID]struct{}

	procs *processtable.Table
	sub   *processtable.Subscriber
	done  chan struct{}
}

// New creates a MonitorTable bound to procs and starts its termination
// subscription loop.
func New(procs *processtable.Table) *Table {
	t := &Table{
		edges:     make(map[ID]edge),
		byWatched: make(map[process.ID]map[ID]struct{}),
		byWatcher: make(map[process.ID]map[ID]struct{}),
		procs:     procs,
		sub:       procs.Bus().Subscribe(),
		done:      make(chan struct{}),
	}
	go t.run()
	return t
}

// Close stops the subscription loop.
func (t *Table) Close() {
	t.procs.Bus().Unsubscribe(t.sub)
	close(t.done)
}

// Monitor records a one-way watch of watched by watcher. If watched is not
// currently running, the monitor is NOT recorded and a process_down(noproc)
// event is published asynchronously.
func (t *Table) Monitor(watcher, watched process.ID) ID {
	if _, ok := t.procs.Lookup(watched); !ok {
		id := newID()
		go t.procs.Bus().Publish(processtable.Event{
			Kind:      processtable.EventProcessDown,
			Watcher:   watcher,
			Watched:   watched,
			MonitorID: string(id),
			Reason:    process.NoProc(),
		})
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := newID()
	t.edges[id] = edge{id: id, watcher: watcher, watched: watched}
	t.indexLocked(t.byWatched, watched, id)
	t.indexLocked(t.byWatcher, watcher, id)
	metrics.SetMonitorEdgeCount(len(t.edges))
	return id
}

func (t *Table) indexLocked(idx map[process.ID]map[ID]struct{}, p process.ID, id ID) {
	m, ok := idx[p]
	if !ok {
		m = make(map[ID]struct{})
		idx[p] = m
	}
	m[id] = struct{}{}
}

// Demonitor removes a monitor edge idempotently.
func (t *Table) Demonitor(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
	metrics.SetMonitorEdgeCount(len(t.edges))
}

func (t *Table) removeLocked(id ID) {
	e, ok := t.edges[id]
	if !ok {
		return
	}
	delete(t.edges, id)
	if m := t.byWatched[e.watched]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(t.byWatched, e.watched)
		}
	}
	if m := t.byWatcher[e.watcher]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(t.byWatcher, e.watcher)
		}
	}
}

func (t *Table) run() {
	for {
		select {
		case <-t.done:
			return
		case ev := <-t.sub.Events():
			if ev.Kind == processtable.EventTerminated {
				t.onTerminated(ev.ID, ev.Reason)
			}
		}
	}
}

func (t *Table) onTerminated(p process.ID, reason process.TerminateReason) {
	t.mu.Lock()
	watchedIDs := make([]ID, 0, len(t.byWatched[p]))
	for id := range t.byWatched[p] {
		watchedIDs = append(watchedIDs, id)
	}
	edges := make([]edge, 0, len(watchedIDs))
	for _, id := range watchedIDs {
		edges = append(edges, t.edges[id])
		t.removeLocked(id)
	}
	// Cleanup on watcher termination: drop every monitor p itself holds.
	watcherIDs := make([]ID, 0, len(t.byWatcher[p]))
	for id := range t.byWatcher[p] {
		watcherIDs = append(watcherIDs, id)
	}
	for _, id := range watcherIDs {
		t.removeLocked(id)
	}
	metrics.SetMonitorEdgeCount(len(t.edges))
	t.mu.Unlock()

	for _, e := range edges {
		t.procs.Bus().Publish(processtable.Event{
			Kind:      processtable.EventProcessDown,
			Watcher:   e.watcher,
			Watched:   e.watched,
			MonitorID: string(e.id),
			Reason:    reason,
		})
	}
}
