package processtable

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
)

func TestSpawnRegisterLookupRemove(t *testing.T) {
	tbl := New()
	defer tbl.Close()

	sub := tbl.Bus().Subscribe()
	defer tbl.Bus().Unsubscribe(sub)

	p, err := tbl.Spawn("worker", process.Funcs{}, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, ok := tbl.Lookup(p.ID()); !ok {
		t.Fatalf("expected lookup to find %s", p.ID())
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != EventStarted || ev.ID != p.ID() {
			t.Fatalf("expected started event for %s, got %+v", p.ID(), ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for started event")
	}

	if err := p.Stop(context.Background(), process.Normal()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-p.Done()

	select {
	case ev := <-sub.Events():
		if ev.Kind != EventTerminated || ev.ID != p.ID() {
			t.Fatalf("expected terminated event for %s, got %+v", p.ID(), ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminated event")
	}

	if _, ok := tbl.Lookup(p.ID()); ok {
		t.Fatalf("expected lookup to fail after termination")
	}
}

func TestAllIds(t *testing.T) {
	tbl := New()
	defer tbl.Close()
	a, _ := tbl.Spawn("a", process.Funcs{}, nil)
	b, _ := tbl.Spawn("b", process.Funcs{}, nil)
	ids := tbl.AllIds()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	_ = a
	_ = b
}
