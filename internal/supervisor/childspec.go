package supervisor

import (
	"time"

	"github.com/loykin/noex/internal/process"
)

// Strategy selects how siblings react to one child's termination.
type Strategy int

const (
	OneForOne Strategy = iota
	OneForAll
	RestForOne
)

// RestartKind is a ChildSpec's restart policy.
type RestartKind int

const (
	Permanent RestartKind = iota
	Transient
	Temporary
)

const defaultShutdownTimeoutMs = 5000

// ChildSpec describes one supervised child. Start is a producer closure
// called once at initial start and again on every restart — it must stay a
// Go closure (not serialized data) so config loading can describe
// everything about a child except the code that starts it.
type ChildSpec struct {
	ID                string
	Start             func() (process.Behavior, any, []process.StartOption) `json:"-"`
	Restart           RestartKind
	ShutdownTimeoutMs int64
}

func (cs ChildSpec) shutdownTimeout() time.Duration {
	ms := cs.ShutdownTimeoutMs
	if ms <= 0 {
		ms = defaultShutdownTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ChildRecord is a supervisor's bookkeeping for one child slot.
type ChildRecord struct {
	Spec              ChildSpec
	CurrentProcessID  process.ID
	RestartCount      int
	RestartTimestamps []time.Time
}

// RestartIntensity bounds how many restarts a supervisor tolerates within a
// sliding window before giving up (defaults: 3 restarts within 5000ms).
type RestartIntensity struct {
	MaxRestarts int
	WithinMs    int64
}

func (ri RestartIntensity) normalized() RestartIntensity {
	if ri.MaxRestarts <= 0 {
		ri.MaxRestarts = 3
	}
	if ri.WithinMs <= 0 {
		ri.WithinMs = 5000
	}
	return ri
}

// Spec describes a supervisor at start time.
type Spec struct {
	ID               string
	Strategy         Strategy
	Children         []ChildSpec
	RestartIntensity RestartIntensity
}
