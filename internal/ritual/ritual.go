// Package ritual owns the consent state machine gating encode and
// decode.
//
// Ownership boundary:
// - named consent steps with acknowledgment flags and timestamps
// - bloom/remember gate derivation by set membership
// - optional strict-order acknowledgment validation
//
// State is per-session: it has no terminal state, persists for the
// life of the session, and is not shared across concurrent callers.
package ritual

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownStep = errors.New("ritual: unknown step")
	ErrOutOfOrder  = errors.New("ritual: step acknowledged out of order")
)

// Step names one consent acknowledgment.
type Step string

// Default consent sequence. The first three gate encode (bloom), the
// last three gate decode (remember); the subsets are disjoint.
const (
	StepGround   Step = "ground"
	StepIntend   Step = "intend"
	StepBloom    Step = "bloom"
	StepStill    Step = "still"
	StepWitness  Step = "witness"
	StepRemember Step = "remember"
)

// DefaultSteps is the declared acknowledgment order for a new state.
func DefaultSteps() []Step {
	return []Step{StepGround, StepIntend, StepBloom, StepStill, StepWitness, StepRemember}
}

// BloomGate is the step subset whose conjunction permits encode.
func BloomGate() []Step { return []Step{StepGround, StepIntend, StepBloom} }

// RememberGate is the step subset whose conjunction permits decode.
func RememberGate() []Step { return []Step{StepStill, StepWitness, StepRemember} }

// StepStatus is one step's acknowledgment record, as snapshotted into
// ledger entries.
type StepStatus struct {
	Step         Step      `json:"step" cbor:"1,keyasint"`
	Acknowledged bool      `json:"acknowledged" cbor:"2,keyasint"`
	When         time.Time `json:"when,omitzero" cbor:"3,keyasint,omitempty"`
}

// State is the consent machine for one session.
type State struct {
	order        []Step
	bloomGate    []Step
	rememberGate []Step
	acked        map[Step]time.Time
	strictOrder  bool
	now          func() time.Time
}

// Option configures a new State.
type Option func(*State)

// WithStrictOrder requires steps to be acknowledged in declared order.
// The source ritual only checks subset completion for gating; order
// enforcement is a configurable extra.
func WithStrictOrder() Option {
	return func(s *State) { s.strictOrder = true }
}

// WithSteps replaces the declared step sequence and gate subsets.
func WithSteps(order, bloomGate, rememberGate []Step) Option {
	return func(s *State) {
		s.order = append([]Step(nil), order...)
		s.bloomGate = append([]Step(nil), bloomGate...)
		s.rememberGate = append([]Step(nil), rememberGate...)
	}
}

func withClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New returns a State with every step unacknowledged.
func New(opts ...Option) *State {
	s := &State{
		order:        DefaultSteps(),
		bloomGate:    BloomGate(),
		rememberGate: RememberGate(),
		acked:        make(map[Step]time.Time),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acknowledge marks a step as consented. Idempotent: the first
// acknowledgment's timestamp is kept. In strict-order mode the step
// must be the next unacknowledged one in declared order.
func (s *State) Acknowledge(step Step) error {
	if !s.known(step) {
		return fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if _, ok := s.acked[step]; ok {
		return nil
	}
	if s.strictOrder {
		next, ok := s.nextUnacknowledged()
		if !ok || next != step {
			return fmt.Errorf("%w: %q", ErrOutOfOrder, step)
		}
	}
	s.acked[step] = s.now().UTC()
	return nil
}

// Acknowledged reports whether a step has been consented to.
func (s *State) Acknowledged(step Step) bool {
	_, ok := s.acked[step]
	return ok
}

// BloomConsent reports whether every encode-gate step is acknowledged.
func (s *State) BloomConsent() bool { return s.allAcked(s.bloomGate) }

// RememberConsent reports whether every decode-gate step is
// acknowledged.
func (s *State) RememberConsent() bool { return s.allAcked(s.rememberGate) }

// Steps returns the full acknowledgment record in declared order.
func (s *State) Steps() []StepStatus {
	out := make([]StepStatus, 0, len(s.order))
	for _, step := range s.order {
		st := StepStatus{Step: step}
		if when, ok := s.acked[step]; ok {
			st.Acknowledged = true
			st.When = when
		}
		out = append(out, st)
	}
	return out
}

func (s *State) allAcked(steps []Step) bool {
	for _, step := range steps {
		if _, ok := s.acked[step]; !ok {
			return false
		}
	}
	return true
}

func (s *State) known(step Step) bool {
	for _, st := range s.order {
		if st == step {
			return true
		}
	}
	return false
}

func (s *State) nextUnacknowledged() (Step, bool) {
	for _, st := range s.order {
		if _, ok := s.acked[st]; !ok {
			return st, true
		}
	}
	return "", false
}
