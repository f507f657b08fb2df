package processtable

import (
	"context"
	"strings"
	"sync"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
)

// Table is the single host-wide structure mapping id -> running process,
// with its own lifecycle EventBus for interested subscribers.
type Table struct {
	mu   sync.RWMutex
	proc map[process.ID]*process.Process
	bus  *Bus
}

// New creates an empty table with its own running event bus.
func New() *Table {
	return &Table{proc: make(map[process.ID]*process.Process), bus: NewBus()}
}

// Bus returns the table's lifecycle event bus.
func (t *Table) Bus() *Bus { return t.bus }

// Close stops the table's event bus. Running processes are left untouched —
// callers are responsible for stopping them first.
func (t *Table) Close() { t.bus.Close() }

// Spawn starts a new process under a fresh id (prefixed by name for
// readability), registers it atomically before returning, and wires its
// lifecycle hooks to the table's event bus.
func (t *Table) Spawn(name string, behavior process.Behavior, config any, opts ...process.StartOption) (*process.Process, error) {
	id := process.NewID(name)
	return t.SpawnWithID(id, behavior, config, opts...)
}

// SpawnWithID is like Spawn but with a caller-chosen id (used by Supervisor
// and Registry-coordinated starts that need to know the id before Init
// resolves).
func (t *Table) SpawnWithID(id process.ID, behavior process.Behavior, config any, opts ...process.StartOption) (*process.Process, error) {
	return t.spawnWithID(id, behavior, config, nil, opts...)
}

// SpawnWithIDAndHook is like SpawnWithID, but runs preRegister (if non-nil)
// once the process is live in the table, before EventStarted is published —
// so a caller's own registration (e.g. Registry.Register) is guaranteed to
// complete before any subscriber can observe the process as started. If
// preRegister returns an error, the process is force-terminated and the
// error is returned instead of a *process.Process.
func (t *Table) SpawnWithIDAndHook(id process.ID, behavior process.Behavior, config any, preRegister func(process.ID) error, opts ...process.StartOption) (*process.Process, error) {
	return t.spawnWithID(id, behavior, config, preRegister, opts...)
}

func (t *Table) spawnWithID(id process.ID, behavior process.Behavior, config any, preRegister func(process.ID) error, opts ...process.StartOption) (*process.Process, error) {
	hooks := process.Hooks{
		OnStarted: func(id process.ID) {
			t.mu.Lock()
			t.proc[id] = nil // placeholder set below once Start returns *Process
			t.mu.Unlock()
			metrics.IncProcessStarted(metricName(id))
		},
		OnTerminated: func(id process.ID, reason process.TerminateReason) {
			t.Remove(id)
			metrics.IncProcessTerminated(metricName(id), reason.String())
			t.bus.Publish(Event{Kind: EventTerminated, ID: id, Reason: reason})
		},
	}
	p, err := process.Start(id, behavior, config, hooks, opts...)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.proc[id] = p
	t.mu.Unlock()
	if preRegister != nil {
		if err := preRegister(id); err != nil {
			t.Remove(id)
			_ = p.ForceTerminate(context.Background(), process.Error(err))
			return nil, err
		}
	}
	t.bus.Publish(Event{Kind: EventStarted, ID: id})
	return p, nil
}

// metricName derives a low-cardinality metrics label from an id allocated by
// process.NewID (format "<prefix>-<n>"), collapsing per-instance ids back to
// their shared prefix.
func metricName(id process.ID) string {
	s := string(id)
	i := strings.LastIndexByte(s, '-')
	if i < 0 || i == len(s)-1 {
		return s
	}
	for _, c := range s[i+1:] {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:i]
}

// Register inserts an already-started process (used when a caller builds
// processes outside Spawn, e.g. tests). It does not publish a started event.
func (t *Table) Register(p *process.Process) {
	t.mu.Lock()
	t.proc[p.ID()] = p
	t.mu.Unlock()
}

// Lookup returns the process for id, or ok=false if unknown or already
// terminated — a sentinel return, not an exception.
func (t *Table) Lookup(id process.ID) (*process.Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.proc[id]
	return p, ok && p != nil
}

// Remove deletes id from the table; idempotent.
func (t *Table) Remove(id process.ID) {
	t.mu.Lock()
	delete(t.proc, id)
	t.mu.Unlock()
}

// AllIds returns a snapshot of every currently-registered id.
func (t *Table) AllIds() []process.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]process.ID, 0, len(t.proc))
	for id, p := range t.proc {
		if p != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshots returns a read-only snapshot for every registered process.
func (t *Table) Snapshots() []process.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]process.Snapshot, 0, len(t.proc))
	for _, p := range t.proc {
		if p != nil {
			out = append(out, p.Snapshot())
		}
	}
	return out
}
