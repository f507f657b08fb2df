// Package registry implements the Registry: named lookup with unique or
// duplicate key modes, glob pattern queries, and automatic cleanup on
// process termination.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

// KeyMode selects unique or duplicate registration semantics.
type KeyMode int

const (
	Unique KeyMode = iota
	Duplicate
)

var (
	ErrAlreadyRegistered    = errors.New("registry: already registered")
	ErrDuplicateRegistration = errors.New("registry: duplicate registration")
	ErrNotRegistered        = errors.New("registry: not registered")
	ErrUseLookupAll         = errors.New("registry: use LookupAll in duplicate mode")
)

// Entry is one registration.
type Entry struct {
	Key          string
	ProcessID    process.ID
	Metadata     any
	RegisteredAt time.Time
}

// Match pairs an entry with the key it matched against (same as Key today,
// kept distinct for forward compatibility with pattern captures).
type Match struct {
	Entry
}

// Registry is a single named instance. Multiple instances share only the
// cleanup subscription to the owning ProcessTable's event bus.
type Registry struct {
	Name string
	mode KeyMode

	mu      sync.RWMutex
	byKey   map[string][]Entry // duplicate mode: many; unique mode: at most one
}

// Set is the shared cleanup coordinator: every Registry created via the
// same Set subscribes once and is swept together when a process terminates.
type Set struct {
	procs *processtable.Table
	sub   *processtable.Subscriber
	done  chan struct{}

	mu    sync.Mutex
	regs  []*Registry
}

// NewSet creates a registry coordinator bound to procs and starts its
// cleanup subscription loop. Callers normally keep one Set per ProcessTable
// and call NewRegistry on it for the default "global" registry plus any
// number of isolated named instances.
func NewSet(procs *processtable.Table) *Set {
	s := &Set{procs: procs, sub: procs.Bus().Subscribe(), done: make(chan struct{})}
	go s.run()
	return s
}

// Close stops the cleanup subscription loop.
func (s *Set) Close() {
	s.procs.Bus().Unsubscribe(s.sub)
	close(s.done)
}

// NewRegistry creates and registers a new Registry under this Set.
func (s *Set) NewRegistry(name string, mode KeyMode) *Registry {
	r := &Registry{Name: name, mode: mode, byKey: make(map[string][]Entry)}
	s.mu.Lock()
	s.regs = append(s.regs, r)
	s.mu.Unlock()
	return r
}

func (s *Set) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.sub.Events():
			if ev.Kind == processtable.EventTerminated {
				s.mu.Lock()
				regs := append([]*Registry(nil), s.regs...)
				s.mu.Unlock()
				for _, r := range regs {
					r.removeByProcessID(ev.ID)
				}
			}
		}
	}
}

// Register inserts (key, processId). Unique mode rejects an existing key;
// duplicate mode rejects an identical (key, processId) pair.
func (r *Registry) Register(key string, id process.ID, metadata any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.byKey[key]
	if r.mode == Unique {
		if len(existing) > 0 {
			return fmt.Errorf("%w: key %q", ErrAlreadyRegistered, key)
		}
	} else {
		for _, e := range existing {
			if e.ProcessID == id {
				return fmt.Errorf("%w: key %q, process %s", ErrDuplicateRegistration, key, id)
			}
		}
	}
	r.byKey[key] = append(existing, Entry{Key: key, ProcessID: id, Metadata: metadata, RegisteredAt: time.Now()})
	metrics.SetRegistryEntryCount(r.Name, r.countLocked())
	return nil
}

// SpawnAndRegister starts a new process under table and registers it in r
// under key as part of the same atomic start: registration runs inside
// table's own pre-publish hook, so it completes before the process's started
// event is published and no subscriber can ever observe a running,
// unregistered process. If registration fails (e.g. a unique-mode key
// collision) the process is force-terminated and never observed as started.
func (r *Registry) SpawnAndRegister(table *processtable.Table, name, key string, behavior process.Behavior, config any, metadata any, opts ...process.StartOption) (*process.Process, error) {
	id := process.NewID(name)
	return table.SpawnWithIDAndHook(id, behavior, config, func(pid process.ID) error {
		return r.Register(key, pid, metadata)
	}, opts...)
}

// countLocked sums entries across every key. Caller holds r.mu.
func (r *Registry) countLocked() int {
	n := 0
	for _, entries := range r.byKey {
		n += len(entries)
	}
	return n
}

// Lookup returns the single entry for key in unique mode. Calling it in
// duplicate mode is an error; use LookupAll.
func (r *Registry) Lookup(key string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.mode == Duplicate {
		return Entry{}, ErrUseLookupAll
	}
	entries := r.byKey[key]
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: key %q", ErrNotRegistered, key)
	}
	return entries[0], nil
}

// LookupAll returns every entry for key, in any mode.
func (r *Registry) LookupAll(key string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byKey[key]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// UpdateMetadata atomically replaces metadata for every entry matching key
// (one entry in unique mode, all in duplicate mode) via fn.
func (r *Registry) UpdateMetadata(key string, fn func(current any) any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byKey[key]
	for i := range entries {
		entries[i].Metadata = fn(entries[i].Metadata)
	}
}

// Dispatch enumerates every entry for key and applies send to each entry's
// process id. If send is nil, msg is cast to each process.
func (r *Registry) Dispatch(msg any, key string, send func(id process.ID, msg any), procs *processtable.Table) {
	entries := r.LookupAll(key)
	for _, e := range entries {
		if send != nil {
			send(e.ProcessID, msg)
			continue
		}
		if p, ok := procs.Lookup(e.ProcessID); ok {
			_ = p.Cast(msg)
		}
	}
}

// Select performs a linear scan, returning every entry for which predicate
// returns true.
func (r *Registry) Select(predicate func(key string, e Entry) bool) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Match
	for key, entries := range r.byKey {
		for _, e := range entries {
			if predicate(key, e) {
				out = append(out, Match{Entry: e})
			}
		}
	}
	return out
}

// Match performs a glob query over keys ('*' any run excluding '/', '**'
// any run including '/', '?' exactly one char, everything else literal),
// optionally filtered further by predicate.
func (r *Registry) Match(pattern string, predicate func(key string, e Entry) bool) []Match {
	re := compileGlob(pattern)
	return r.Select(func(key string, e Entry) bool {
		if !re.MatchString(key) {
			return false
		}
		return predicate == nil || predicate(key, e)
	})
}

func (r *Registry) removeByProcessID(id process.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entries := range r.byKey {
		filtered := entries[:0]
		for _, e := range entries {
			if e.ProcessID != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = filtered
		}
	}
	metrics.SetRegistryEntryCount(r.Name, r.countLocked())
}
