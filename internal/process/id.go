package process

import (
	"fmt"
	"sync/atomic"
)

// ID is an opaque, unique process identifier. It is stable for the lifetime
// of a process and is never reused once terminated.
type ID string

var idSeq atomic.Uint64

// NewID allocates a fresh, never-reused process id. prefix is cosmetic and
// helps when reading logs; it does not affect uniqueness.
func NewID(prefix string) ID {
	n := idSeq.Add(1)
	if prefix == "" {
		prefix = "proc"
	}
	return ID(fmt.Sprintf("%s-%d", prefix, n))
}

func (id ID) String() string { return string(id) }
