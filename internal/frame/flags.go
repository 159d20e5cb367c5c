package frame

// Flags is the one-byte frame flag bitset. Named accessors replace
// manual masking at call sites; bits 2-7 are reserved and must be
// zero on the wire.
type Flags uint8

const (
	// FlagCRC marks that a CRC32 of the payload follows the length.
	FlagCRC Flags = 1 << 0
	// Flag4BPC marks that the frame was embedded at 4 bits per channel.
	Flag4BPC Flags = 1 << 1

	reservedMask Flags = ^(FlagCRC | Flag4BPC)
)

func (f Flags) HasCRC() bool  { return f&FlagCRC != 0 }
func (f Flags) FourBPC() bool { return f&Flag4BPC != 0 }

// Validate rejects any flag byte with reserved bits set.
func (f Flags) Validate() error {
	if f&reservedMask != 0 {
		return ErrMalformedHeader
	}
	return nil
}
