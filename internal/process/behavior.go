package process

import "context"

// NoReply is returned by HandleCall to mean "no reply is produced in this
// invocation". The core has no machinery to resume the reply later; callers
// that return NoReply are expected to reply out of band (e.g. by keeping the
// caller's id in state and casting to it later) — the core only needs to
// recognize the primitive shape.
var NoReply = struct{ noReply byte }{}

// TerminateReason tags why a process stopped. Zero value is the implicit
// "still running" sentinel and must not be used as a real reason.
type TerminateReason struct {
	Kind    TerminateKind
	Err     error
	Details string
}

type TerminateKind int

const (
	_ TerminateKind = iota
	ReasonNormal
	ReasonShutdown
	ReasonError
	ReasonNoProc // monitor-only: the watched id never existed
)

func (r TerminateReason) String() string {
	switch r.Kind {
	case ReasonNormal:
		return "normal"
	case ReasonShutdown:
		return "shutdown"
	case ReasonError:
		if r.Err != nil {
			return "error: " + r.Err.Error()
		}
		return "error"
	case ReasonNoProc:
		return "noproc"
	default:
		return "unknown"
	}
}

// Normal returns the reason the core uses for a clean, caller-requested stop.
func Normal() TerminateReason { return TerminateReason{Kind: ReasonNormal} }

// Shutdown returns the reason used for supervisor-driven ordered shutdown.
func Shutdown() TerminateReason { return TerminateReason{Kind: ReasonShutdown} }

// Error wraps err as an abnormal termination reason.
func Error(err error) TerminateReason { return TerminateReason{Kind: ReasonError, Err: err} }

// NoProc is the reason delivered to a monitor of a watched id that never existed.
func NoProc() TerminateReason { return TerminateReason{Kind: ReasonNoProc} }

// IsAbnormal reports whether r is anything other than a clean "normal" stop —
// the condition that drives link propagation and "transient" supervisor
// restarts.
func (r TerminateReason) IsAbnormal() bool { return r.Kind != ReasonNormal }

// Behavior is the caller-supplied operation table a Process dispatches
// against: the core only ever calls through this capability set, never
// reaches into user state directly.
type Behavior interface {
	// Init produces the initial state from a start-time config. A non-nil
	// error fails the start with ErrInitializationFailed.
	Init(ctx context.Context, config any) (state any, err error)
	// HandleCall answers a synchronous request. Returning NoReply as reply
	// means no value is pushed to the caller in this invocation.
	HandleCall(ctx context.Context, msg any, state any) (reply any, next any, err error)
	// HandleCast handles a fire-and-forget message.
	HandleCast(ctx context.Context, msg any, state any) (next any, err error)
	// HandleInfo handles an out-of-band message (timer fire, exit signal,
	// user push).
	HandleInfo(ctx context.Context, msg any, state any) (next any, err error)
	// Terminate runs last-chance cleanup. Its error, if any, is swallowed.
	Terminate(ctx context.Context, reason TerminateReason, state any) error
}

// Funcs adapts a sparse set of callback functions into a Behavior, so a
// caller can supply only the callbacks it needs instead of a full interface
// implementation. Unset fields default to no-ops: Init returns the config as
// the initial state,
// HandleCast/HandleInfo pass state through unchanged, HandleCall replies
// with NoReply, Terminate does nothing.
type Funcs struct {
	InitFunc       func(ctx context.Context, config any) (any, error)
	HandleCallFunc func(ctx context.Context, msg any, state any) (reply any, next any, err error)
	HandleCastFunc func(ctx context.Context, msg any, state any) (any, error)
	HandleInfoFunc func(ctx context.Context, msg any, state any) (any, error)
	TerminateFunc  func(ctx context.Context, reason TerminateReason, state any) error
}

func (f Funcs) Init(ctx context.Context, config any) (any, error) {
	if f.InitFunc == nil {
		return config, nil
	}
	return f.InitFunc(ctx, config)
}

func (f Funcs) HandleCall(ctx context.Context, msg any, state any) (any, any, error) {
	if f.HandleCallFunc == nil {
		return NoReply, state, nil
	}
	return f.HandleCallFunc(ctx, msg, state)
}

func (f Funcs) HandleCast(ctx context.Context, msg any, state any) (any, error) {
	if f.HandleCastFunc == nil {
		return state, nil
	}
	return f.HandleCastFunc(ctx, msg, state)
}

func (f Funcs) HandleInfo(ctx context.Context, msg any, state any) (any, error) {
	if f.HandleInfoFunc == nil {
		return state, nil
	}
	return f.HandleInfoFunc(ctx, msg, state)
}

func (f Funcs) Terminate(ctx context.Context, reason TerminateReason, state any) error {
	if f.TerminateFunc == nil {
		return nil
	}
	return f.TerminateFunc(ctx, reason, state)
}
