package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

func spawn(t *testing.T, procs *processtable.Table, name string) *process.Process {
	t.Helper()
	p, err := procs.Spawn(name, process.Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) { return nil, nil },
	}, nil)
	if err != nil {
		t.Fatalf("spawn %s: %v", name, err)
	}
	return p
}

func drainProcessDown(sub *processtable.Subscriber, timeout time.Duration) []processtable.Event {
	var out []processtable.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == processtable.EventProcessDown {
				out = append(out, ev)
			}
		case <-deadline:
			return out
		}
	}
}

func TestMonitorNonexistentWatchedPublishesSingleNoProc(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	mt := New(procs)
	defer mt.Close()

	sub := procs.Bus().Subscribe()
	defer procs.Bus().Unsubscribe(sub)

	watcher := spawn(t, procs, "watcher")
	defer watcher.Stop(context.Background(), process.Normal())

	mt.Monitor(watcher.ID(), process.ID("no-such-process"))

	events := drainProcessDown(sub, 300*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("expected exactly one process_down event, got %d: %+v", len(events), events)
	}
	if events[0].Reason.Kind != process.NoProc().Kind {
		t.Fatalf("expected noproc reason, got %v", events[0].Reason)
	}
}

func TestMonitorWatchedTerminationPublishesProcessDown(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	mt := New(procs)
	defer mt.Close()

	sub := procs.Bus().Subscribe()
	defer procs.Bus().Unsubscribe(sub)

	watcher := spawn(t, procs, "watcher")
	defer watcher.Stop(context.Background(), process.Normal())
	watched := spawn(t, procs, "watched")

	mid := mt.Monitor(watcher.ID(), watched.ID())
	_ = watched.ForceTerminate(context.Background(), process.Error(errors.New("boom")))

	events := drainProcessDown(sub, 500*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("expected exactly one process_down event, got %d", len(events))
	}
	ev := events[0]
	if ev.Watcher != watcher.ID() || ev.Watched != watched.ID() || ev.MonitorID != string(mid) {
		t.Fatalf("unexpected process_down event: %+v", ev)
	}
	if !ev.Reason.IsAbnormal() {
		t.Fatalf("expected abnormal reason, got %v", ev.Reason)
	}
}

func TestDemonitorPreventsProcessDown(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	mt := New(procs)
	defer mt.Close()

	sub := procs.Bus().Subscribe()
	defer procs.Bus().Unsubscribe(sub)

	watcher := spawn(t, procs, "watcher")
	defer watcher.Stop(context.Background(), process.Normal())
	watched := spawn(t, procs, "watched")

	mid := mt.Monitor(watcher.ID(), watched.ID())
	mt.Demonitor(mid)

	_ = watched.Stop(context.Background(), process.Normal())
	<-watched.Done()

	events := drainProcessDown(sub, 200*time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("expected no process_down after demonitor, got %d", len(events))
	}
}

func TestWatcherTerminationClearsItsMonitors(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	mt := New(procs)
	defer mt.Close()

	watcher := spawn(t, procs, "watcher")
	watched := spawn(t, procs, "watched")
	defer watched.Stop(context.Background(), process.Normal())

	mt.Monitor(watcher.ID(), watched.ID())
	_ = watcher.Stop(context.Background(), process.Normal())
	<-watcher.Done()

	time.Sleep(20 * time.Millisecond)
	mt.mu.Lock()
	n := len(mt.edges)
	mt.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected watcher's monitor edges cleared, got %d", n)
	}
}
