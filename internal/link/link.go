// Package link implements the LinkTable: symmetric link edges between
// processes with abnormal-exit propagation, stored as an arena of keyed
// edges rather than owning pointers between the linked processes.
package link

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// ID identifies a single link edge.
type ID string

var seq atomic.Uint64

func newID() ID {
	return ID("link-" + itoa(seq.Add(1)))
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
	id   ID
	a, b process.ID
}

// Table is the arena of link edges. It subscribes to a ProcessTable's event
// bus and propagates abnormal terminations to linked peers.
type Table struct {
	mu    sync.Mutex
	edges map[ID]edge
	byProc map[process.ID]map[ID]struct{}

	procs *processtable.Table
	sub   *processtable.Subscriber
	done  chan struct{}
}

// New creates a LinkTable bound to procs and starts its termination
// subscription loop.
func New(procs *processtable.Table) *Table {
	t := &Table{
		edges:  make(map[ID]edge),
		byProc: make(map[process.ID]map[ID]struct{}),
		procs:  procs,
		sub:    procs.Bus().Subscribe(),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// Close stops the subscription loop. Existing edges are left in the table.
func (t *Table) Close() {
	t.procs.Bus().Unsubscribe(t.sub)
	close(t.done)
}

// Link establishes a bidirectional edge between a and b. Self-links are
// permitted.
func (t *Table) Link(a, b process.ID) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := newID()
	t.edges[id] = edge{id: id, a: a, b: b}
	t.index(a, id)
	t.index(b, id)
	metrics.SetLinkEdgeCount(len(t.edges))
	return id
}

func (t *Table) index(p process.ID, id ID) {
	m, ok := t.byProc[p]
	if !ok {
		m = make(map[ID]struct{})
		t.byProc[p] = m
	}
	m[id] = struct{}{}
}

// Unlink removes a link edge by id; idempotent.
func (t *Table) Unlink(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
	metrics.SetLinkEdgeCount(len(t.edges))
}

func (t *Table) removeLocked(id ID) {
	e, ok := t.edges[id]
	if !ok {
		return
	}
	delete(t.edges, id)
	if m := t.byProc[e.a]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(t.byProc, e.a)
		}
	}
	if e.a != e.b {
		if m := t.byProc[e.b]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(t.byProc, e.b)
			}
		}
	}
}

// Links returns every edge id currently touching p.
func (t *Table) Links(p process.ID) []ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byProc[p]
	out := make([]ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func (t *Table) run() {
	for {
		select {
		case <-t.done:
			return
		case ev := <-t.sub.Events():
			if ev.Kind == processtable.EventTerminated {
				t.propagate(ev.ID, ev.Reason)
			}
		}
	}
}

// propagate applies abnormal-exit propagation for every link touching the
// terminated process p.
func (t *Table) propagate(p process.ID, reason process.TerminateReason) {
	t.mu.Lock()
	ids := make([]ID, 0, len(t.byProc[p]))
	for id := range t.byProc[p] {
		ids = append(ids, id)
	}
	peers := make([]process.ID, 0, len(ids))
	for _, id := range ids {
		e := t.edges[id]
		// Step 1: remove the edge before propagation, preventing cycles.
		t.removeLocked(id)
		peer := e.a
		if peer == p {
			peer = e.b
		}
		if peer == p {
			continue // self-link: nothing further to notify
		}
		peers = append(peers, peer)
	}
	metrics.SetLinkEdgeCount(len(t.edges))
	t.mu.Unlock()

	if !reason.IsAbnormal() {
		return // step 2: normal exit propagates nothing further
	}
	for _, peer := range peers {
		proc, ok := t.procs.Lookup(peer)
		if !ok {
			continue
		}
		if proc.TrapExit() {
			// Step 3: convert to an in-band info message.
			proc.DeliverExitSignal(process.ExitSignal{From: p, Reason: reason})
			continue
		}
		// Step 4: cascade force-termination; the peer's own termination
		// event will be propagated by this same loop.
		_ = proc.ForceTerminate(context.Background(), reason)
	}
}
