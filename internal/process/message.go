package process

import "context"

type msgKind int

const (
	kindCall msgKind = iota
	kindCast
	kindInfo
	kindSystem
)

type systemOp int

const (
	sysStop systemOp = iota
	sysForceTerminate
	sysExitSignal
)

// mailboxMsg is the single envelope type flowing through a process's
// mailbox channel, carrying an arbitrary payload and an optional reply value.
type mailboxMsg struct {
	kind    msgKind
	payload any

	// call-only
	reply chan callResult

	// system-only
	op     systemOp
	reason TerminateReason
}

type callResult struct {
	value any
	err   error
}

// ExitSignal is the info-message payload delivered to a trap-exit process
// when a linked peer terminates abnormally.
type ExitSignal struct {
	From   ID
	Reason TerminateReason
}

// Status is the process lifecycle state.
type Status int

const (
	Initializing Status = iota
	Running
	Stopping
	Stopped
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name ("running", ...) in JSON snapshots.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a read-only, observation-instant-consistent view of a
// process's public counters.
type Snapshot struct {
	ID           ID
	Status       Status
	QueueSize    int
	MessageCount uint64
	StartedAt    int64 // unix nanos; 0 if not yet running
}

// StartOption configures a process at construction. Grounded on the
// teacher's Spec struct-of-options idiom (internal/process/spec.go), reduced
// to the fields this runtime's §4.2/§6 define.
type StartOption func(*options)

type options struct {
	initTimeout  int64 // ms
	callTimeout  int64 // ms
	trapExit     bool
	mailboxSize  int
	stateStore   StateStore
	storeKey     string
	onSaveErr    func(error)
	name         string
	parentCtx    context.Context
}

// StateStore is the persistence adapter contract: a Process may serialize
// its opaque state via save/load/delete/exists/listKeys. A Process calls Load
// once before init, and Save after every handler that returns without error
// and again on shutdown; saves are not debounced.
type StateStore interface {
	Save(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
}

const (
	defaultInitTimeoutMs = 5000
	defaultCallTimeoutMs = 5000
	defaultMailboxSize   = 256
)

func defaultOptions() options {
	return options{
		initTimeout: defaultInitTimeoutMs,
		callTimeout: defaultCallTimeoutMs,
		mailboxSize: defaultMailboxSize,
		parentCtx:   context.Background(),
	}
}

// WithInitTimeoutMs overrides the default 5000ms init bound.
func WithInitTimeoutMs(ms int64) StartOption { return func(o *options) { o.initTimeout = ms } }

// WithCallTimeoutMs overrides the default 5000ms call bound.
func WithCallTimeoutMs(ms int64) StartOption { return func(o *options) { o.callTimeout = ms } }

// WithTrapExit enables trap-exit: propagated exits become info messages.
func WithTrapExit(trap bool) StartOption { return func(o *options) { o.trapExit = trap } }

// WithMailboxSize sets the buffered mailbox channel capacity.
func WithMailboxSize(n int) StartOption { return func(o *options) { o.mailboxSize = n } }

// WithName sets a cosmetic name used to build the process id prefix.
func WithName(name string) StartOption { return func(o *options) { o.name = name } }

// WithStateStore attaches a persistence adapter under the given key: state
// is restored during init, saved after each handler that returns without
// error, and flushed on shutdown; only a []byte state is saved. Adapter errors
// go to onErr (if non-nil) and never stop the process.
func WithStateStore(store StateStore, key string, onErr func(error)) StartOption {
	return func(o *options) {
		o.stateStore = store
		o.storeKey = key
		o.onSaveErr = onErr
	}
}

// WithParentContext binds a parent context whose cancellation forces the
// process to stop (shutdown reason) without waiting for an explicit Stop.
func WithParentContext(ctx context.Context) StartOption {
	return func(o *options) { o.parentCtx = ctx }
}
