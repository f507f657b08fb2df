package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func counterBehavior() Behavior {
	return Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) {
			return 0, nil
		},
		HandleCallFunc: func(ctx context.Context, msg any, state any) (any, any, error) {
			if msg == "get" {
				return state, state, nil
			}
			return NoReply, state, nil
		},
		HandleCastFunc: func(ctx context.Context, msg any, state any) (any, error) {
			if msg == "inc" {
				return state.(int) + 1, nil
			}
			return state, nil
		},
	}
}

func TestCounterLifecycle(t *testing.T) {
	var startedID, terminatedID ID
	var reason TerminateReason
	hooks := Hooks{
		OnStarted:    func(id ID) { startedID = id },
		OnTerminated: func(id ID, r TerminateReason) { terminatedID = id; reason = r },
	}

	id := NewID("counter")
	p, err := Start(id, counterBehavior(), nil, hooks)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if startedID != id {
		t.Fatalf("expected OnStarted to fire with %s, got %s", id, startedID)
	}

	for i := 0; i < 3; i++ {
		if err := p.Cast("inc"); err != nil {
			t.Fatalf("cast %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := p.Call(ctx, "get")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.(int) != 3 {
		t.Fatalf("expected 3, got %v", v)
	}

	if err := p.Stop(ctx, Normal()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-p.Done()

	if p.Status() != Stopped {
		t.Fatalf("expected stopped, got %v", p.Status())
	}
	if terminatedID != id {
		t.Fatalf("expected OnTerminated to fire with %s", id)
	}
	if reason.Kind != ReasonNormal {
		t.Fatalf("expected normal reason, got %v", reason)
	}
}

func TestCallTimeoutDoesNotStopHandler(t *testing.T) {
	release := make(chan struct{})
	behavior := Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) { return nil, nil },
		HandleCallFunc: func(ctx context.Context, msg any, state any) (any, any, error) {
			<-release
			return "done", state, nil
		},
	}
	p, err := Start(NewID("slow"), behavior, nil, Hooks{}, WithCallTimeoutMs(20))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	_, err = p.Call(ctx, "work")
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected call timeout, got %v", err)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	if p.Status() != Running {
		t.Fatalf("expected process to still be running after timeout, got %v", p.Status())
	}
	_ = p.Stop(context.Background(), Normal())
}

func TestNotRunningAfterStop(t *testing.T) {
	p, err := Start(NewID("x"), Funcs{}, nil, Hooks{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Stop(context.Background(), Normal()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-p.Done()
	if err := p.Cast("x"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected not_running, got %v", err)
	}
	if _, err := p.Call(context.Background(), "x"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected not_running, got %v", err)
	}
}

func TestInitFailure(t *testing.T) {
	behavior := Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) {
			return nil, errors.New("boom")
		},
	}
	_, err := Start(NewID("bad"), behavior, nil, Hooks{})
	if !errors.Is(err, ErrInitializationFailed) {
		t.Fatalf("expected ErrInitializationFailed, got %v", err)
	}
}

func TestForceTerminateSkipsTerminate(t *testing.T) {
	terminateCalled := false
	block := make(chan struct{})
	behavior := Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) { return nil, nil },
		HandleCastFunc: func(ctx context.Context, msg any, state any) (any, error) {
			<-block
			return state, nil
		},
		TerminateFunc: func(ctx context.Context, reason TerminateReason, state any) error {
			terminateCalled = true
			return nil
		},
	}
	p, err := Start(NewID("f"), behavior, nil, Hooks{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = p.Cast("blocker")
	time.Sleep(10 * time.Millisecond) // ensure blocker is in-flight

	reply := make(chan callResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, cerr := p.Call(ctx, "queued")
		reply <- callResult{err: cerr}
	}()
	time.Sleep(10 * time.Millisecond)

	close(block)
	if err := p.ForceTerminate(context.Background(), Error(errors.New("fatal"))); err != nil {
		t.Fatalf("force terminate: %v", err)
	}
	<-p.Done()
	if terminateCalled {
		t.Fatalf("terminate should be skipped on force-terminate")
	}
}
