package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Error taxonomy shared by all components of the node core.
 *
 * Description:	Each component returns a distinct sentinel.  A calling
 *		layer combines a child's failure with its own component
 *		tag by wrapping (never by arithmetic on code spaces), so
 *		the outermost caller can always tell which layer failed
 *		and why.  Failures are pushed onto a bounded record; only
 *		the protocol stack decides whether to retry.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("transport exchange failed")
	ErrStateTimeout      = errors.New("radio state switch timeout")
	ErrFifoNotReady      = errors.New("fifo access outside matching state")
	ErrFifoOverrun       = errors.New("fifo payload exceeds capacity")
	ErrAddressOutOfRange = errors.New("store address out of range")
	ErrLock              = errors.New("store lock step failed")
	ErrEncryptionTimeout = errors.New("cipher core timeout")
	ErrTimer             = errors.New("wake timer failure")
	ErrDmaConfig         = errors.New("stream channel reconfigured while armed")
)

// Component identifies the layer a Status originated from.
type Component uint8

const (
	ComponentTransport Component = iota + 1
	ComponentRadio
	ComponentStream
	ComponentCipher
	ComponentStore
	ComponentTimer
	ComponentNode
)

var componentNames = map[Component]string{
	ComponentTransport: "transport",
	ComponentRadio:     "radio",
	ComponentStream:    "stream",
	ComponentCipher:    "cipher",
	ComponentStore:     "store",
	ComponentTimer:     "timer",
	ComponentNode:      "node",
}

func (c Component) String() string {
	if s, ok := componentNames[c]; ok {
		return s
	}
	return fmt.Sprintf("component(%d)", uint8(c))
}

// Status tags an error with the component it came from.  Wrapping a child
// Status in a parent one keeps the full origin chain distinguishable.
type Status struct {
	Component Component
	Err       error
}

func (s Status) Error() string {
	return s.Component.String() + ": " + s.Err.Error()
}

func (s Status) Unwrap() error {
	return s.Err
}

// Tag wraps err with the given component.  A nil err stays nil.
func Tag(c Component, err error) error {
	if err == nil {
		return nil
	}
	return Status{Component: c, Err: err}
}

// errorStackCap bounds the failure record so an error storm cannot grow
// memory at runtime.
const errorStackCap = 32

// ErrorStack is a bounded record of component failures.  Push never
// allocates past the fixed capacity; once full, new entries are counted
// but not stored.
type ErrorStack struct {
	entries [errorStackCap]error
	count   int
	dropped int
}

func (s *ErrorStack) Push(err error) {
	if err == nil {
		return
	}
	if s.count >= errorStackCap {
		s.dropped++
		return
	}
	s.entries[s.count] = err
	s.count++
}

// Pop removes and returns the most recent entry, or nil when empty.
func (s *ErrorStack) Pop() error {
	if s.count == 0 {
		return nil
	}
	s.count--
	err := s.entries[s.count]
	s.entries[s.count] = nil
	return err
}

func (s *ErrorStack) Len() int { return s.count }

// Dropped reports how many entries were discarded because the record
// was full.
func (s *ErrorStack) Dropped() int { return s.dropped }

func (s *ErrorStack) Reset() {
	for i := 0; i < s.count; i++ {
		s.entries[i] = nil
	}
	s.count = 0
	s.dropped = 0
}

// All returns the recorded entries, oldest first.
func (s *ErrorStack) All() []error {
	out := make([]error, s.count)
	copy(out, s.entries[:s.count])
	return out
}
