package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

func counterSpec(id string) ChildSpec {
	return ChildSpec{
		ID:      id,
		Restart: Permanent,
		Start: func() (process.Behavior, any, []process.StartOption) {
			return process.Funcs{
				InitFunc: func(ctx context.Context, config any) (any, error) { return 0, nil },
			}, nil, nil
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOneForOneRestart(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()

	sup, err := Start(procs, Spec{
		ID:       "sup1",
		Strategy: OneForOne,
		Children: []ChildSpec{counterSpec("c1"), counterSpec("c2")},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop(context.Background(), process.Normal())

	before := sup.Children()
	c1Before, c2Before := before[0].CurrentProcessID, before[1].CurrentProcessID

	p1, _ := procs.Lookup(c1Before)
	_ = p1.ForceTerminate(context.Background(), process.Error(errors.New("boom")))

	waitFor(t, time.Second, func() bool {
		after := sup.Children()
		return after[0].CurrentProcessID != c1Before
	})

	after := sup.Children()
	if after[1].CurrentProcessID != c2Before {
		t.Fatalf("expected c2 unaffected, got %s want %s", after[1].CurrentProcessID, c2Before)
	}
	if after[0].RestartCount != 1 {
		t.Fatalf("expected c1 restartCount 1, got %d", after[0].RestartCount)
	}
	if after[1].RestartCount != 0 {
		t.Fatalf("expected c2 restartCount 0, got %d", after[1].RestartCount)
	}
}

func TestRestForOneCascade(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()

	sup, err := Start(procs, Spec{
		ID:       "sup2",
		Strategy: RestForOne,
		Children: []ChildSpec{counterSpec("c1"), counterSpec("c2"), counterSpec("c3")},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop(context.Background(), process.Normal())

	before := sup.Children()
	c1Before := before[0].CurrentProcessID
	c2Before := before[1].CurrentProcessID
	c3Before := before[2].CurrentProcessID

	p2, _ := procs.Lookup(c2Before)
	_ = p2.ForceTerminate(context.Background(), process.Error(errors.New("boom")))

	waitFor(t, time.Second, func() bool {
		after := sup.Children()
		return after[1].CurrentProcessID != c2Before && after[2].CurrentProcessID != c3Before
	})

	after := sup.Children()
	if after[0].CurrentProcessID != c1Before {
		t.Fatalf("expected c1 unaffected")
	}
	if after[1].CurrentProcessID == c2Before {
		t.Fatalf("expected c2 to change")
	}
	if after[2].CurrentProcessID == c3Before {
		t.Fatalf("expected c3 to change")
	}
}

func TestRestartIntensityGivesUp(t *testing.T) {
	procs := processtable.New()
	defer procs.Close()
	sub := procs.Bus().Subscribe()
	defer procs.Bus().Unsubscribe(sub)

	sup, err := Start(procs, Spec{
		ID:       "sup4",
		Strategy: OneForOne,
		Children: []ChildSpec{counterSpec("c")},
		RestartIntensity: RestartIntensity{MaxRestarts: 2, WithinMs: 1000},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 3; i++ {
		children := sup.Children()
		if len(children) == 0 {
			break
		}
		p, ok := procs.Lookup(children[0].CurrentProcessID)
		if ok {
			_ = p.ForceTerminate(context.Background(), process.Error(errors.New("boom")))
		}
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return len(sup.Children()) == 0 })

	found := false
	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Kind == processtable.EventTerminated && ev.ID == process.ID("sup4") {
				if !errors.Is(ev.Reason.Err, ErrMaxRestartsExceeded) {
					t.Fatalf("expected MaxRestartsExceeded, got %v", ev.Reason)
				}
				found = true
			}
		case <-time.After(200 * time.Millisecond):
		}
		if found {
			break
		}
	}
	if !found {
		t.Fatal("expected supervisor terminated event with MaxRestartsExceeded")
	}
}
