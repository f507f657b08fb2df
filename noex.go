// Package noex is an OTP-style in-process actor runtime: single-goroutine
// processes with mailboxes, links, monitors, named registries, and
// supervision trees with restart strategies.
//
// This file is a thin facade over the internal packages: type aliases for
// zero-cost re-exports, and a Runtime wrapping the lower-level pieces
// (ProcessTable, LinkTable, MonitorTable, TimerService, Registry Set) into
// one embeddable entry point.
package noex

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/noex/internal/behaviorreg"
	"github.com/loykin/noex/internal/config"
	"github.com/loykin/noex/internal/eventlog"
	"github.com/loykin/noex/internal/httpapi"
	"github.com/loykin/noex/internal/link"
	"github.com/loykin/noex/internal/logging"
	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/monitor"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
	"github.com/loykin/noex/internal/registry"
	"github.com/loykin/noex/internal/store"
	"github.com/loykin/noex/internal/supervisor"
	"github.com/loykin/noex/internal/timer"
)

// Re-exported core types: zero-cost aliases so embedders only need this
// top-level package for everyday use.
type (
	ID              = process.ID
	Behavior        = process.Behavior
	Funcs           = process.Funcs
	TerminateReason = process.TerminateReason
	Snapshot        = process.Snapshot
	StartOption     = process.StartOption
	StateStore      = process.StateStore

	Strategy         = supervisor.Strategy
	RestartKind      = supervisor.RestartKind
	ChildSpec        = supervisor.ChildSpec
	ChildRecord      = supervisor.ChildRecord
	RestartIntensity = supervisor.RestartIntensity
	SupervisorSpec   = supervisor.Spec
	Supervisor       = supervisor.Supervisor

	KeyMode  = registry.KeyMode
	Registry = registry.Registry

	SupervisorConfig = config.SupervisorConfig

	LoggingConfig = logging.Config
)

const (
	OneForOne  = supervisor.OneForOne
	OneForAll  = supervisor.OneForAll
	RestForOne = supervisor.RestForOne

	Permanent = supervisor.Permanent
	Transient = supervisor.Transient
	Temporary = supervisor.Temporary

	Unique    = registry.Unique
	Duplicate = registry.Duplicate
)

func Normal() TerminateReason               { return process.Normal() }
func Shutdown() TerminateReason             { return process.Shutdown() }
func ErrorReason(err error) TerminateReason { return process.Error(err) }

// StartOption re-exports, mirroring process's functional-option constructors.
var (
	WithInitTimeoutMs = process.WithInitTimeoutMs
	WithCallTimeoutMs = process.WithCallTimeoutMs
	WithTrapExit      = process.WithTrapExit
	WithMailboxSize   = process.WithMailboxSize
	WithName          = process.WithName
	WithStateStore    = process.WithStateStore
	WithParentContext = process.WithParentContext
)

// Runtime is a host-wide actor runtime: one ProcessTable plus the
// collaborator tables (links, monitors, timers) and bookkeeping for named
// supervisors and registries.
type Runtime struct {
	table      *processtable.Table
	links      *link.Table
	monitors   *monitor.Table
	timers     *timer.Service
	regSet     *registry.Set
	behaviors  *behaviorreg.Registry
	store      process.StateStore
	recorder   *eventlog.Recorder

	supervisors map[string]*Supervisor
	registries  map[string]*Registry
}

// New creates a Runtime with its own ProcessTable and collaborator tables.
func New() *Runtime {
	table := processtable.New()
	r := &Runtime{
		table:       table,
		links:       link.New(table),
		monitors:    monitor.New(table),
		timers:      timer.New(table),
		regSet:      registry.NewSet(table),
		behaviors:   behaviorreg.New(),
		supervisors: make(map[string]*Supervisor),
		registries:  make(map[string]*Registry),
	}
	return r
}

// Table exposes the underlying ProcessTable for callers that need the raw
// Spawn/Lookup surface.
func (r *Runtime) Table() *processtable.Table { return r.table }

// Behaviors exposes the behavior-name registry used for declarative
// (config-driven) supervision trees.
func (r *Runtime) Behaviors() *behaviorreg.Registry { return r.behaviors }

// Spawn starts a new process under a fresh id.
func (r *Runtime) Spawn(name string, behavior Behavior, cfg any, opts ...StartOption) (*process.Process, error) {
	return r.table.Spawn(name, behavior, cfg, opts...)
}

// Link creates a bidirectional link between a and b.
func (r *Runtime) Link(a, b ID) link.ID { return r.links.Link(a, b) }

// Unlink removes a previously-created link.
func (r *Runtime) Unlink(id link.ID) { r.links.Unlink(id) }

// Monitor starts watching watched on behalf of watcher.
func (r *Runtime) Monitor(watcher, watched ID) monitor.ID {
	return r.monitors.Monitor(watcher, watched)
}

// Demonitor cancels a previously-created monitor.
func (r *Runtime) Demonitor(id monitor.ID) { r.monitors.Demonitor(id) }

// SendAfter schedules a one-shot cast after delayMs.
func (r *Runtime) SendAfter(target ID, msg any, delayMs int64) timer.ID {
	return r.timers.SendAfter(target, msg, delayMs)
}

// SendEvery schedules a recurring cast every intervalMs.
func (r *Runtime) SendEvery(target ID, msg any, intervalMs int64) timer.ID {
	return r.timers.SendEvery(target, msg, intervalMs)
}

// CancelTimer cancels a previously-scheduled timer.
func (r *Runtime) CancelTimer(id timer.ID) bool { return r.timers.CancelTimer(id) }

// NewRegistry creates (and remembers, for diagnostics) a named Registry.
func (r *Runtime) NewRegistry(name string, mode KeyMode) *Registry {
	reg := r.regSet.NewRegistry(name, mode)
	r.registries[name] = reg
	return reg
}

// SpawnAndRegister starts a new process and registers it into reg under key
// atomically: registration completes before the process's started event is
// published, so no subscriber ever observes a running, unregistered process.
func (r *Runtime) SpawnAndRegister(reg *Registry, name, key string, behavior Behavior, cfg any, metadata any, opts ...StartOption) (*process.Process, error) {
	return reg.SpawnAndRegister(r.table, name, key, behavior, cfg, metadata, opts...)
}

// ConfigureLogging installs a *slog.Logger per cfg as the process-wide
// default — the runtime's own slog.Debug calls (process/supervisor internals)
// and any caller logging start going through it immediately.
func (r *Runtime) ConfigureLogging(cfg LoggingConfig) *slog.Logger {
	return logging.New(cfg)
}

// StartSupervisor starts a supervision tree and remembers it under spec.ID
// so DiagnosticsRouter can list its children.
func (r *Runtime) StartSupervisor(spec SupervisorSpec) (*Supervisor, error) {
	sv, err := supervisor.Start(r.table, spec)
	if err != nil {
		return nil, err
	}
	r.supervisors[spec.ID] = sv
	return sv, nil
}

// StartSupervisorFromConfig loads a declarative supervision tree from path
// and starts it, resolving each child's behavior against r.Behaviors().
func (r *Runtime) StartSupervisorFromConfig(path string) (*Supervisor, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	spec, err := cfg.ToSpec(r.behaviors)
	if err != nil {
		return nil, err
	}
	return r.StartSupervisor(spec)
}

// SetStateStoreFromDSN configures the persistence adapter new Spawn calls
// may opt into via WithStateStore(rt.StateStore(), key, onErr).
func (r *Runtime) SetStateStoreFromDSN(ctx context.Context, dsn string) error {
	s, err := store.NewFromDSN(ctx, dsn)
	if err != nil {
		return err
	}
	r.store = s
	return nil
}

// StateStore returns the configured persistence adapter, or nil if none was set.
func (r *Runtime) StateStore() StateStore { return r.store }

// SetEventLogSink starts forwarding every lifecycle event to sink.
func (r *Runtime) SetEventLogSink(sink eventlog.Sink) {
	if r.recorder != nil {
		r.recorder.Close()
	}
	r.recorder = eventlog.NewRecorder(r.table.Bus(), sink)
}

// DiagnosticsRouter builds a read-only HTTP diagnostics router over this
// Runtime's current state.
func (r *Runtime) DiagnosticsRouter(basePath string) *httpapi.Router {
	return httpapi.New(r.table, basePath,
		func() map[string]*Supervisor { return r.supervisors },
		func() map[string]*Registry { return r.registries },
	)
}

// NewDiagnosticsServer builds a standalone diagnostics HTTP server for addr;
// it does not start listening.
func (r *Runtime) NewDiagnosticsServer(addr, basePath string) *http.Server {
	return httpapi.NewServer(addr, r.DiagnosticsRouter(basePath))
}

// Close stops the Runtime's collaborator tables and event bus. Running
// processes are left untouched — callers stop them (or their supervisors)
// explicitly first.
func (r *Runtime) Close() {
	if r.recorder != nil {
		r.recorder.Close()
	}
	r.links.Close()
	r.monitors.Close()
	r.regSet.Close()
	r.table.Close()
}

// RegisterMetrics registers the runtime's Prometheus collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error { return metrics.Register(reg) }

// RegisterMetricsDefault registers against prometheus.DefaultRegisterer.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts a standalone HTTP server on addr exposing /metrics.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
