package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
)

type memSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memSink) Send(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memSink) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func TestRecorderForwardsStartedAndTerminated(t *testing.T) {
	table := processtable.New()
	defer table.Close()

	sink := &memSink{}
	rec := NewRecorder(table.Bus(), sink)
	defer rec.Close()

	behavior := process.Funcs{}
	p, err := table.Spawn("worker", behavior, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := p.Stop(context.Background(), process.Normal()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entries := sink.snapshot()
		if len(entries) >= 2 {
			if entries[0].Kind != KindStarted || entries[1].Kind != KindTerminated {
				t.Fatalf("unexpected entries: %+v", entries)
			}
			if entries[1].ReasonKind != "normal" {
				t.Fatalf("expected normal reason, got %q", entries[1].ReasonKind)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for entries, got %+v", sink.snapshot())
}
