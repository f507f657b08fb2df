package noex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
)

func counterBehavior() Funcs {
	return Funcs{
		InitFunc: func(ctx context.Context, config any) (any, error) { return 0, nil },
		HandleCastFunc: func(ctx context.Context, msg any, state any) (any, error) {
			if msg == "inc" {
				return state.(int) + 1, nil
			}
			return state, nil
		},
		HandleCallFunc: func(ctx context.Context, msg any, state any) (any, any, error) {
			return state, state, nil
		},
	}
}

func TestRuntimeSpawnCastCallStop(t *testing.T) {
	rt := New()
	defer rt.Close()

	p, err := rt.Spawn("counter", counterBehavior(), nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.Cast("inc"); err != nil {
			t.Fatalf("cast: %v", err)
		}
	}
	v, err := p.Call(context.Background(), "get")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.(int) != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
	if err := p.Stop(context.Background(), Normal()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRuntimeSupervisorFacade(t *testing.T) {
	rt := New()
	defer rt.Close()

	spec := SupervisorSpec{
		ID:       "app",
		Strategy: OneForOne,
		Children: []ChildSpec{
			{ID: "worker-1", Start: func() (Behavior, any, []StartOption) {
				b := counterBehavior()
				return b, nil, nil
			}, Restart: Permanent},
		},
	}
	sv, err := rt.StartSupervisor(spec)
	if err != nil {
		t.Fatalf("start supervisor: %v", err)
	}
	if len(sv.Children()) != 1 {
		t.Fatalf("expected 1 child, got %d", len(sv.Children()))
	}
	sv.Stop(context.Background(), Shutdown())
}

func TestRuntimeLinkMonitorRegistryTimer(t *testing.T) {
	rt := New()
	defer rt.Close()

	a, err := rt.Spawn("a", counterBehavior(), nil)
	if err != nil {
		t.Fatalf("spawn a: %v", err)
	}
	b, err := rt.Spawn("b", counterBehavior(), nil)
	if err != nil {
		t.Fatalf("spawn b: %v", err)
	}
	lid := rt.Link(a.ID(), b.ID())
	rt.Unlink(lid)

	mid := rt.Monitor(a.ID(), b.ID())
	rt.Demonitor(mid)

	reg := rt.NewRegistry("workers", Unique)
	if err := reg.Register("primary", a.ID(), nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	tid := rt.SendAfter(a.ID(), "inc", 50)
	if !rt.CancelTimer(tid) {
		t.Fatalf("expected timer still pending")
	}

	_ = a.Stop(context.Background(), Normal())
	_ = b.Stop(context.Background(), Normal())
}

func TestRuntimeDiagnosticsRouter(t *testing.T) {
	rt := New()
	defer rt.Close()

	p, err := rt.Spawn("worker", counterBehavior(), nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = p.Stop(context.Background(), process.Normal()) }()

	h := rt.DiagnosticsRouter("/api").Handler()
	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRuntimeStateStoreFromDSN(t *testing.T) {
	rt := New()
	defer rt.Close()

	if err := rt.SetStateStoreFromDSN(context.Background(), ":memory:"); err != nil {
		t.Fatalf("set state store: %v", err)
	}
	if rt.StateStore() == nil {
		t.Fatalf("expected a configured state store")
	}

	p, err := rt.Spawn("counter", counterBehavior(), nil,
		WithStateStore(rt.StateStore(), "counter/1", nil))
	if err != nil {
		t.Fatalf("spawn with state store: %v", err)
	}
	_ = p.Cast("inc")
	time.Sleep(10 * time.Millisecond)
	_ = p.Stop(context.Background(), Normal())
}
