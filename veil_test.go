package veil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/quietbloom/veil/internal/bitpack"
	"github.com/quietbloom/veil/internal/channel"
	"github.com/quietbloom/veil/internal/frame"
	"github.com/quietbloom/veil/internal/ledger"
	"github.com/quietbloom/veil/internal/ritual"
)

func newTestSession(t *testing.T, cfg Config) (*Session, *ledger.MemoryLedger) {
	t.Helper()
	if cfg.Caller == "" {
		cfg.Caller = "test"
	}
	led := ledger.NewMemoryLedger()
	s, err := NewSession(cfg, nil, led)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, led
}

func ack(t *testing.T, s *Session, steps []ritual.Step) {
	t.Helper()
	for _, step := range steps {
		if err := s.Acknowledge(step); err != nil {
			t.Fatalf("acknowledge %q: %v", step, err)
		}
	}
}

func patternCover(w, h int) *CoverImage {
	img := NewCover(w, h)
	for i := range img.Pix {
		img.Pix[i] = byte(i*7 + 13)
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s, led := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.DefaultSteps())

	cover := patternCover(64, 48)
	message := []byte("what the garden keeps, the garden returns")
	metadata := []byte("caller=test season=spring")

	stego, encEntry, err := s.Encode(cover, message, metadata, "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encEntry.IntegrityStatus != string(StatusOK) {
		t.Fatalf("encode entry status = %q", encEntry.IntegrityStatus)
	}

	gotMsg, gotMeta, rec, decEntry, err := s.Decode(stego, "cover.png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(gotMsg, message) {
		t.Fatalf("message = %q, want %q", gotMsg, message)
	}
	if !bytes.Equal(gotMeta, metadata) {
		t.Fatalf("metadata = %q, want %q", gotMeta, metadata)
	}
	if rec.Status != StatusOK {
		t.Fatalf("record status = %q, want ok", rec.Status)
	}
	if rec.CorrectedByteCount != 0 {
		t.Fatalf("corrected = %d, want 0", rec.CorrectedByteCount)
	}
	if decEntry.Action != ledger.ActionDecode {
		t.Fatalf("decode entry action = %q", decEntry.Action)
	}
	if led.Len() != 2 {
		t.Fatalf("ledger entries = %d, want 2", led.Len())
	}
}

func TestEncodeLeavesCoverUntouched(t *testing.T) {
	s, _ := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.BloomGate())

	cover := patternCover(64, 48)
	before := cover.Clone()
	stego, _, err := s.Encode(cover, []byte("leave no trace behind you"), []byte("m"), "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !cover.Equal(before) {
		t.Fatal("encode mutated the input cover")
	}
	if stego.Equal(before) {
		t.Fatal("stego grid carries no embedded bits")
	}
}

func TestEncodeRequiresBloomConsent(t *testing.T) {
	s, led := newTestSession(t, Config{})

	cover := patternCover(64, 48)
	before := cover.Clone()
	_, _, err := s.Encode(cover, []byte("hidden"), nil, "cover.png")

	var consent ConsentRequiredError
	if !errors.As(err, &consent) {
		t.Fatalf("expected ConsentRequiredError, got %v", err)
	}
	if consent.Gate != GateBloom {
		t.Fatalf("gate = %q, want %q", consent.Gate, GateBloom)
	}
	if !cover.Equal(before) {
		t.Fatal("refused encode touched the cover")
	}
	if led.Len() != 0 {
		t.Fatalf("refused encode wrote %d ledger entries", led.Len())
	}
}

func TestDecodeRequiresRememberConsent(t *testing.T) {
	s, led := newTestSession(t, Config{})
	ack(t, s, ritual.BloomGate())

	stego, _, err := s.Encode(patternCover(64, 48), []byte("hidden"), nil, "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	entriesAfterEncode := led.Len()

	_, _, _, _, err = s.Decode(stego, "cover.png")
	var consent ConsentRequiredError
	if !errors.As(err, &consent) {
		t.Fatalf("expected ConsentRequiredError, got %v", err)
	}
	if consent.Gate != GateRemember {
		t.Fatalf("gate = %q, want %q", consent.Gate, GateRemember)
	}
	if led.Len() != entriesAfterEncode {
		t.Fatal("refused decode wrote a ledger entry")
	}
}

func TestDecodeRepairsSingleChannel(t *testing.T) {
	s, _ := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.DefaultSteps())

	message := []byte("a message long enough that byte twenty-five sits inside it")
	stego, _, err := s.Encode(patternCover(64, 48), message, []byte("m"), "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Flip one bit of the message plane, inside the frame payload.
	stego.Pix[3*200] ^= 1

	gotMsg, _, rec, _, err := s.Decode(stego, "cover.png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != StatusRecovered {
		t.Fatalf("status = %q, want recovered_with_parity", rec.Status)
	}
	if rec.CorrectedByteCount != 1 {
		t.Fatalf("corrected = %d, want 1", rec.CorrectedByteCount)
	}
	if !bytes.Equal(gotMsg, message) {
		t.Fatalf("repaired message = %q", gotMsg)
	}
}

func TestDecodeRepairsMetadataChannel(t *testing.T) {
	s, _ := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.DefaultSteps())

	// Metadata is far shorter than the message, so the parity spans
	// well past the metadata frame's end.
	message := []byte("a message long enough that byte twenty-five sits inside it")
	stego, _, err := s.Encode(patternCover(96, 64), message, []byte("m"), "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Flip one bit of the metadata plane, inside its frame.
	stego.Pix[3*104+1] ^= 1

	gotMsg, gotMeta, rec, _, err := s.Decode(stego, "cover.png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != StatusRecovered {
		t.Fatalf("status = %q, want recovered_with_parity", rec.Status)
	}
	if rec.CorrectedByteCount != 1 {
		t.Fatalf("corrected = %d, want 1", rec.CorrectedByteCount)
	}
	if !bytes.Equal(gotMsg, message) {
		t.Fatal("message disturbed by metadata repair")
	}
	if string(gotMeta) != "m" {
		t.Fatalf("repaired metadata = %q", gotMeta)
	}
}

func TestDecodeDoubleCorruptionReturnsNothing(t *testing.T) {
	s, led := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.DefaultSteps())

	stego, _, err := s.Encode(patternCover(64, 48),
		[]byte("thirty bytes of message text.."),
		[]byte("thirty bytes of metadata text."), "cover.png")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	entriesAfterEncode := led.Len()

	// Damage both carrier planes past repairability.
	stego.Pix[3*160] ^= 1   // message plane, byte 20
	stego.Pix[3*160+1] ^= 1 // metadata plane, byte 20

	msg, meta, rec, _, err := s.Decode(stego, "cover.png")
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
	if msg != nil || meta != nil {
		t.Fatal("payload bytes leaked on integrity failure")
	}
	if rec.Status != StatusFailedCRC {
		t.Fatalf("record status = %q, want failed_crc", rec.Status)
	}
	if led.Len() != entriesAfterEncode {
		t.Fatal("failed decode wrote a ledger entry")
	}
}

func TestDecodeLegacyCover(t *testing.T) {
	s, led := newTestSession(t, Config{})
	ack(t, s, ritual.RememberGate())

	img := patternCover(32, 16)
	enc, err := frame.EncodeLegacy([]byte("the first garden"))
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}
	if err := bitpack.Pack(img, channel.MessageChannel, enc, 1); err != nil {
		t.Fatalf("pack: %v", err)
	}

	msg, meta, rec, entry, err := s.Decode(img, "old.png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(msg) != "the first garden" {
		t.Fatalf("message = %q", msg)
	}
	if meta != nil {
		t.Fatalf("legacy decode produced metadata %q", meta)
	}
	if rec.Status != StatusLegacy {
		t.Fatalf("status = %q, want legacy", rec.Status)
	}
	if entry.IntegrityStatus != string(StatusLegacy) {
		t.Fatalf("entry status = %q", entry.IntegrityStatus)
	}
	if led.Len() != 1 {
		t.Fatalf("ledger entries = %d, want 1", led.Len())
	}
}

func TestLedgerEntriesCarryRitualState(t *testing.T) {
	s, led := newTestSession(t, Config{})
	ack(t, s, ritual.BloomGate())

	if _, _, err := s.Encode(patternCover(64, 48), []byte("x"), nil, "cover.png"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	entries, err := led.Query(LedgerFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	acked := 0
	for _, st := range entries[0].Ritual {
		if st.Acknowledged {
			acked++
		}
	}
	if acked != len(ritual.BloomGate()) {
		t.Fatalf("acknowledged steps in entry = %d, want %d", acked, len(ritual.BloomGate()))
	}
}

func TestEncodeCeiling(t *testing.T) {
	// On a 56x40 cover at one bit per channel each plane holds 280
	// bytes. The integrity record grows with the message (two hex
	// digits of parity per encoded message byte), so the B channel is
	// the binding constraint: a 25-byte message fills it exactly, one
	// byte more overflows.
	s, _ := newTestSession(t, Config{BitsPerChannel: 1, WithCRC: true})
	ack(t, s, ritual.BloomGate())

	fits := bytes.Repeat([]byte{'x'}, 25)
	if _, _, err := s.Encode(patternCover(56, 40), fits, []byte("m"), "cover.png"); err != nil {
		t.Fatalf("exact-fit encode: %v", err)
	}

	cover := patternCover(56, 40)
	before := cover.Clone()
	_, _, err := s.Encode(cover, append(fits, 'x'), []byte("m"), "cover.png")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if !cover.Equal(before) {
		t.Fatal("overflowing encode mutated the cover")
	}
}

func TestNewSessionRejectsBadDepth(t *testing.T) {
	if _, err := NewSession(Config{BitsPerChannel: 3}, nil, ledger.NewMemoryLedger()); !errors.Is(err, ErrBitsPerChannel) {
		t.Fatalf("expected ErrBitsPerChannel, got %v", err)
	}
}

func TestCapacity(t *testing.T) {
	got, err := Capacity(100, 100, 1)
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if want := 100 * 100 * 3 / 8; got != want {
		t.Fatalf("capacity = %d, want %d", got, want)
	}
}
