package process

import "errors"

// Sentinel errors for the kinds the core distinguishes. Callers compare with
// errors.Is; wrapped variants add context via fmt.Errorf("...: %w", ...).
var (
	ErrInitializationFailed = errors.New("process: initialization failed")
	ErrInitTimeout          = errors.New("process: init timeout")
	ErrCallTimeout          = errors.New("process: call timeout")
	ErrNotRunning           = errors.New("process: not running")
)

// IsInitErr reports whether err originated from a failed or timed-out init,
// the one case a restart loop should not immediately retry against a
// still-warm process slot.
func IsInitErr(err error) bool {
	return errors.Is(err, ErrInitializationFailed) || errors.Is(err, ErrInitTimeout)
}
