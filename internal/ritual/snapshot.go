package ritual

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// snapshot is the serialized form of a State, stable across process
// boundaries.
type snapshot struct {
	Order        []Step       `cbor:"1,keyasint"`
	BloomGate    []Step       `cbor:"2,keyasint"`
	RememberGate []Step       `cbor:"3,keyasint"`
	Acks         []StepStatus `cbor:"4,keyasint"`
	StrictOrder  bool         `cbor:"5,keyasint"`
}

// Snapshot serializes the state, acknowledgment timestamps included.
func (s *State) Snapshot() ([]byte, error) {
	snap := snapshot{
		Order:        s.order,
		BloomGate:    s.bloomGate,
		RememberGate: s.rememberGate,
		Acks:         s.Steps(),
		StrictOrder:  s.strictOrder,
	}
	b, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("ritual: snapshot: %w", err)
	}
	return b, nil
}

// Restore rebuilds a State from a Snapshot.
func Restore(data []byte) (*State, error) {
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ritual: restore: %w", err)
	}
	opts := []Option{WithSteps(snap.Order, snap.BloomGate, snap.RememberGate)}
	if snap.StrictOrder {
		opts = append(opts, WithStrictOrder())
	}
	s := New(opts...)
	for _, ack := range snap.Acks {
		if ack.Acknowledged {
			s.acked[ack.Step] = ack.When
		}
	}
	return s, nil
}
