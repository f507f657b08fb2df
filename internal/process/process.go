// Package process implements the actor core: a single-goroutine mailbox
// loop running a user-supplied Behavior, modeled on the OTP gen_server
// lifecycle (initializing -> running -> stopping -> stopped).
package process

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loykin/noex/internal/metrics"
)

// Hooks let the owning ProcessTable observe lifecycle transitions without
// Process importing its table (breaks the dependency cycle; grounded on the
// teacher's recordStart/recordStop callback fields on Manager).
type Hooks struct {
	OnStarted    func(id ID)
	OnTerminated func(id ID, reason TerminateReason)
}

// Process is one actor: mailbox, handler loop, state, termination.
type Process struct {
	id       ID
	behavior Behavior
	hooks    Hooks
	opts     options

	status    atomic.Int32
	startedAt atomic.Int64
	msgCount  atomic.Uint64
	trapExit  atomic.Bool

	mailbox chan mailboxMsg
	ctrl    chan mailboxMsg
	done    chan struct{}

	state any
}

// Start constructs and runs a new Process under id, bound to behavior and
// config. It blocks until Init settles (success, error, or timeout) so the
// caller never observes an unregistered running process — atomic
// registration is satisfied one level up, by the table calling Start before
// publishing `started`.
func Start(id ID, behavior Behavior, config any, hooks Hooks, opts ...StartOption) (*Process, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Process{
		id:       id,
		behavior: behavior,
		hooks:    hooks,
		opts:     o,
		mailbox:  make(chan mailboxMsg, o.mailboxSize),
		ctrl:     make(chan mailboxMsg, 4),
		done:     make(chan struct{}),
	}
	p.trapExit.Store(o.trapExit)
	p.status.Store(int32(Initializing))

	initCtx, cancel := context.WithTimeout(o.parentCtx, time.Duration(o.initTimeout)*time.Millisecond)
	defer cancel()

	effectiveConfig := config
	if o.stateStore != nil {
		if payload, ok, err := o.stateStore.Load(initCtx, o.storeKey); err == nil && ok {
			effectiveConfig = payload
		} else if err != nil {
			slog.Debug("process: state restore failed", "id", id, "err", err)
			if o.onSaveErr != nil {
				o.onSaveErr(err)
			}
		}
	}

	type initResult struct {
		state any
		err   error
	}
	resCh := make(chan initResult, 1)
	go func() {
		st, err := behavior.Init(initCtx, effectiveConfig)
		resCh <- initResult{st, err}
	}()

	var st any
	select {
	case r := <-resCh:
		if r.err != nil {
			p.status.Store(int32(Stopped))
			close(p.done)
			return nil, wrapInit(r.err)
		}
		st = r.state
	case <-initCtx.Done():
		p.status.Store(int32(Stopped))
		close(p.done)
		return nil, ErrInitTimeout
	}

	p.state = st
	p.status.Store(int32(Running))
	p.startedAt.Store(time.Now().UnixNano())
	if hooks.OnStarted != nil {
		hooks.OnStarted(id)
	}

	go p.run()
	return p, nil
}

func wrapInit(err error) error {
	return &initError{err: err}
}

type initError struct{ err error }

func (e *initError) Error() string { return "process: initialization failed: " + e.err.Error() }
func (e *initError) Unwrap() error { return ErrInitializationFailed }
func (e *initError) Cause() error  { return e.err }

// ID returns the process's stable identifier.
func (p *Process) ID() ID { return p.id }

// Status returns the current lifecycle status.
func (p *Process) Status() Status { return Status(p.status.Load()) }

// TrapExit reports whether propagated exits become info messages.
func (p *Process) TrapExit() bool { return p.trapExit.Load() }

// Done is closed once the process has fully stopped (after Terminate runs,
// or immediately on ForceTerminate).
func (p *Process) Done() <-chan struct{} { return p.done }

// Snapshot returns a read-only, observation-instant-consistent view of the
// process's public counters.
func (p *Process) Snapshot() Snapshot {
	return Snapshot{
		ID:           p.id,
		Status:       p.Status(),
		QueueSize:    len(p.mailbox),
		MessageCount: p.msgCount.Load(),
		StartedAt:    p.startedAt.Load(),
	}
}

// Call sends a synchronous request and blocks for a reply, a call_timeout
// error, or ctx cancellation, whichever comes first.
func (p *Process) Call(ctx context.Context, msg any) (any, error) {
	if p.Status() != Running {
		return nil, ErrNotRunning
	}
	reply := make(chan callResult, 1)
	m := mailboxMsg{kind: kindCall, payload: msg, reply: reply}
	select {
	case p.mailbox <- m:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeout := time.Duration(p.opts.callTimeout) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		return r.value, nil
	case <-timer.C:
		return nil, ErrCallTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cast enqueues a fire-and-forget message. A user-initiated cast on a
// non-running process raises not_running; internal deliveries (timers, exit
// signals) go through CastSilent/DeliverInfo instead and drop quietly.
func (p *Process) Cast(msg any) error {
	if p.Status() != Running {
		return ErrNotRunning
	}
	p.enqueueSilent(mailboxMsg{kind: kindCast, payload: msg})
	return nil
}

// CastSilent delivers a cast without raising not_running when the process
// is not running (used by TimerService fires).
func (p *Process) CastSilent(msg any) {
	if p.Status() != Running {
		return
	}
	p.enqueueSilent(mailboxMsg{kind: kindCast, payload: msg})
}

// DeliverExitSignal enqueues a trap-exit info message. It is a no-op if the
// process is not running (it may have terminated independently in the same
// tick; LinkTable only acts on links still present at propagation time).
func (p *Process) DeliverExitSignal(sig ExitSignal) {
	p.DeliverInfo(sig)
}

// DeliverInfo enqueues an arbitrary out-of-band info message.
func (p *Process) DeliverInfo(msg any) {
	if p.Status() != Running {
		return
	}
	p.enqueueSilent(mailboxMsg{kind: kindInfo, payload: msg})
}

func (p *Process) enqueueSilent(m mailboxMsg) {
	select {
	case p.mailbox <- m:
	default:
		// Mailbox full: block until there is room or the process stops,
		// whichever first — bounded backpressure rather than an unbounded
		// queue.
		select {
		case p.mailbox <- m:
		case <-p.done:
		}
	}
}

// Stop requests an orderly shutdown: status flips to stopping immediately,
// already-queued messages are rejected (not processed), the in-flight
// handler (if any) completes, terminate runs, and the process becomes
// stopped. Stop blocks until that sequence completes or ctx is done.
func (p *Process) Stop(ctx context.Context, reason TerminateReason) error {
	return p.stop(ctx, reason, false)
}

// ForceTerminate skips terminate, drops the remaining mailbox (rejecting
// pending calls with not_running), and transitions directly to stopped.
func (p *Process) ForceTerminate(ctx context.Context, reason TerminateReason) error {
	return p.stop(ctx, reason, true)
}

func (p *Process) stop(ctx context.Context, reason TerminateReason, force bool) error {
	if !p.beginStopping() {
		<-p.done
		return nil // already stopping or stopped; wait for the in-flight sequence
	}
	reply := make(chan callResult, 1)
	op := sysStop
	if force {
		op = sysForceTerminate
	}
	select {
	case p.ctrl <- mailboxMsg{kind: kindSystem, op: op, reason: reason, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) beginStopping() bool {
	for {
		cur := Status(p.status.Load())
		if cur == Stopping || cur == Stopped {
			return false
		}
		if p.status.CompareAndSwap(int32(cur), int32(Stopping)) {
			return true
		}
	}
}

// run is the goroutine owning state for the lifetime of the process. Only
// this goroutine ever reads or writes p.state, matching spec invariant 1
// (handler exclusivity).
func (p *Process) run() {
	ctx := p.opts.parentCtx
	for {
		select {
		case m := <-p.ctrl:
			p.terminateSequence(m)
			return
		default:
		}

		select {
		case m := <-p.ctrl:
			p.terminateSequence(m)
			return
		case <-ctx.Done():
			p.status.Store(int32(Stopping))
			p.terminateSequence(mailboxMsg{kind: kindSystem, op: sysStop, reason: Shutdown()})
			return
		case m := <-p.mailbox:
			p.dispatch(ctx, m)
		}
	}
}

func (p *Process) dispatch(ctx context.Context, m mailboxMsg) {
	defer p.msgCount.Add(1)
	defer func() { metrics.SetMailboxQueueSize(string(p.id), len(p.mailbox)) }()
	switch m.kind {
	case kindCall:
		reply, next, err := p.behavior.HandleCall(ctx, m.payload, p.state)
		if err != nil {
			if m.reply != nil {
				m.reply <- callResult{err: err}
			}
			return
		}
		p.state = next
		if m.reply != nil && reply != any(NoReply) {
			m.reply <- callResult{value: reply}
		}
	case kindCast:
		next, err := p.behavior.HandleCast(ctx, m.payload, p.state)
		if err != nil {
			slog.Debug("process: handleCast error", "id", p.id, "err", err)
			return
		}
		p.state = next
	case kindInfo:
		next, err := p.behavior.HandleInfo(ctx, m.payload, p.state)
		if err != nil {
			slog.Debug("process: handleInfo error", "id", p.id, "err", err)
			return
		}
		p.state = next
	}
	p.maybeSaveState(ctx)
}

func (p *Process) maybeSaveState(ctx context.Context) {
	store := p.opts.stateStore
	if store == nil {
		return
	}
	payload, ok := p.state.([]byte)
	if !ok {
		return
	}
	if err := store.Save(ctx, p.opts.storeKey, payload); err != nil && p.opts.onSaveErr != nil {
		p.opts.onSaveErr(err)
	}
}

// terminateSequence drains the mailbox, rejecting pending calls with
// not_running, runs terminate() (unless force-terminated), and flips status
// to stopped, closing done and invoking the terminated hook exactly once.
func (p *Process) terminateSequence(ctl mailboxMsg) {
	p.status.Store(int32(Stopping))
	p.drainMailbox()

	reason := ctl.reason
	if ctl.op != sysForceTerminate {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					slog.Debug("process: terminate panicked", "id", p.id, "recover", r)
				}
			}()
			if err := p.behavior.Terminate(tctx, reason, p.state); err != nil {
				slog.Debug("process: terminate error (swallowed)", "id", p.id, "err", err)
			}
		}()
	}

	if p.opts.stateStore != nil {
		p.maybeSaveState(context.Background())
	}

	p.status.Store(int32(Stopped))
	close(p.done)
	if p.hooks.OnTerminated != nil {
		p.hooks.OnTerminated(p.id, reason)
	}
	if ctl.reply != nil {
		ctl.reply <- callResult{}
	}
}

func (p *Process) drainMailbox() {
	for {
		select {
		case m := <-p.mailbox:
			if m.kind == kindCall && m.reply != nil {
				m.reply <- callResult{err: ErrNotRunning}
			}
		default:
			return
		}
	}
}
