package timer

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

func spawnRecorder(t *testing.T, procs *processtable.Table, name string, ch chan string) *process.Process {
	t.Helper()
	p, err := procs.Spawn(name, process.Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) { return nil, nil },
		HandleCastFunc: func(ctx context.Context, msg any, state any) (any, error) {
			if s, ok := msg.(string); ok {
				ch <- s
			}
			return state, nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("spawn %s: %v", name, err)
	}
	return p
}

func drainFor(ch chan string, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case <-ch:
		case <-deadline:
			return
		}
	}
}

func TestSendAfterDeliversCast(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 1)
	p := spawnRecorder(t, procs, "x", ch)
	defer p.Stop(context.Background(), process.Normal())

	svc.SendAfter(p.ID(), "tick", 20)

	select {
	case msg := <-ch:
		if msg != "tick" {
			t.Fatalf("expected tick, got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer fire")
	}
}

func TestCancelTimerPreventsDelivery(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 1)
	p := spawnRecorder(t, procs, "x", ch)
	defer p.Stop(context.Background(), process.Normal())

	id := svc.SendAfter(p.ID(), "tick", 50)
	if !svc.CancelTimer(id) {
		t.Fatalf("expected cancel to succeed before fire")
	}

	select {
	case msg := <-ch:
		t.Fatalf("expected no delivery after cancel, got %q", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCancelTimerReturnsFalseAfterFire(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 1)
	p := spawnRecorder(t, procs, "x", ch)
	defer p.Stop(context.Background(), process.Normal())

	id := svc.SendAfter(p.ID(), "tick", 10)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer fire")
	}
	time.Sleep(10 * time.Millisecond)
	if svc.CancelTimer(id) {
		t.Fatalf("expected cancel of an already-fired one-shot timer to return false")
	}
}

func TestCancelTimerIdempotent(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 1)
	p := spawnRecorder(t, procs, "x", ch)
	defer p.Stop(context.Background(), process.Normal())

	id := svc.SendAfter(p.ID(), "tick", 100)
	if !svc.CancelTimer(id) {
		t.Fatalf("expected first cancel to succeed")
	}
	if svc.CancelTimer(id) {
		t.Fatalf("expected second cancel of the same id to return false")
	}
}

func TestSendEveryFiresRepeatedlyUntilCancelled(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 8)
	p := spawnRecorder(t, procs, "x", ch)
	defer p.Stop(context.Background(), process.Normal())

	id := svc.SendEvery(p.ID(), "tock", 15)

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for recurring fire %d", i)
		}
	}

	if !svc.CancelTimer(id) {
		t.Fatalf("expected cancel to succeed on a still-pending recurring timer")
	}
	drainFor(ch, 30*time.Millisecond)
	select {
	case msg := <-ch:
		t.Fatalf("expected no further fires after cancelling a recurring timer, got %q", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSendAfterToTerminatedTargetIsDiscardedSilently(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	svc := New(procs)

	ch := make(chan string, 1)
	p := spawnRecorder(t, procs, "x", ch)
	_ = p.Stop(context.Background(), process.Normal())
	<-p.Done()

	svc.SendAfter(p.ID(), "tick", 20)

	select {
	case msg := <-ch:
		t.Fatalf("expected no delivery to a terminated target, got %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
