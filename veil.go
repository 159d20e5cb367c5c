package veil

import (
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/quietbloom/veil/internal/bitpack"
	"github.com/quietbloom/veil/internal/channel"
	"github.com/quietbloom/veil/internal/frame"
	"github.com/quietbloom/veil/internal/integrity"
	"github.com/quietbloom/veil/internal/ledger"
	"github.com/quietbloom/veil/internal/logging"
	"github.com/quietbloom/veil/internal/observability"
	"github.com/quietbloom/veil/internal/pixel"
	"github.com/quietbloom/veil/internal/ritual"
)

// Re-exported collaborator types. The mechanism stays internal; these
// are the seam in-repo consumers program against.
type (
	CoverImage      = pixel.Image
	IntegrityRecord = integrity.Record
	IntegrityStatus = integrity.Status
	LedgerEntry     = ledger.Entry
	LedgerFilter    = ledger.Filter
	Ledger          = ledger.Ledger
	RitualState     = ritual.State
	RitualStep      = ritual.Step
)

// Integrity statuses a decode can report.
const (
	StatusOK        = integrity.StatusOK
	StatusRecovered = integrity.StatusRecovered
	StatusFailedCRC = integrity.StatusFailedCRC
	StatusFailedSHA = integrity.StatusFailedSHA
	StatusLegacy    = integrity.StatusLegacy
)

// NewCover returns a zeroed true-color grid.
func NewCover(w, h int) *CoverImage { return pixel.New(w, h) }

// CoverFromImage converts a stdlib image, rejecting paletted and
// non-opaque sources rather than quantizing them.
func CoverFromImage(img image.Image) (*CoverImage, error) { return pixel.FromImage(img) }

// CoverFromImageLossy is the explicit opt-in lossy conversion.
func CoverFromImageLossy(img image.Image) *CoverImage { return pixel.FromImageLossy(img) }

// Capacity returns the embeddable payload bytes across all three
// channels of a w x h cover at the given bits-per-channel setting.
func Capacity(w, h, bpc int) (int, error) { return bitpack.Capacity(w, h, bpc) }

// Session binds one ritual state, one ledger, and one configuration.
// Sessions are single-threaded by contract; the ledger behind them may
// be shared across sessions and processes.
type Session struct {
	cfg    Config
	state  *ritual.State
	ledger ledger.Ledger
	log    zerolog.Logger
}

// NewSession wires a session. A nil state starts with every consent
// step unacknowledged; a nil led falls back to the JSONL file ledger
// at cfg.LedgerPath.
func NewSession(cfg Config, state *RitualState, led Ledger) (*Session, error) {
	if cfg.BitsPerChannel == 0 {
		cfg.BitsPerChannel = DefaultConfig().BitsPerChannel
	}
	if _, err := bitpack.Capacity(1, 1, cfg.BitsPerChannel); err != nil {
		return nil, err
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultConfig().LedgerPath
	}
	if state == nil {
		var opts []ritual.Option
		if cfg.StrictConsentOrder {
			opts = append(opts, ritual.WithStrictOrder())
		}
		state = ritual.New(opts...)
	}
	if led == nil {
		led = ledger.NewFileLedger(cfg.LedgerPath)
	}

	log := logging.New("veil", logging.ProfileRuntime)
	if cfg.LogLevel != "" {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			log = log.Level(lvl)
		}
	}

	observability.RegisterMetrics()
	return &Session{cfg: cfg, state: state, ledger: led, log: log}, nil
}

// Ritual exposes the session's consent machine.
func (s *Session) Ritual() *RitualState { return s.state }

// Acknowledge records consent for one ritual step.
func (s *Session) Acknowledge(step RitualStep) error { return s.state.Acknowledge(step) }

// Encode hides message and metadata in a copy of cover and records the
// operation. The bloom gate is checked before anything else: a refusal
// mutates no pixels and writes no ledger entry. The input cover is
// never modified; the stego result is an independent grid.
func (s *Session) Encode(cover *CoverImage, message, metadata []byte, fileRef string) (*CoverImage, LedgerEntry, error) {
	if !s.state.BloomConsent() {
		observability.RecordConsentDenied(GateBloom)
		s.log.Warn().Str("gate", GateBloom).Msg("encode refused: consent missing")
		return nil, LedgerEntry{}, ConsentRequiredError{Gate: GateBloom}
	}

	stego := cover.Clone()
	rec, err := channel.Embed(stego, message, metadata, s.cfg.BitsPerChannel, s.cfg.WithCRC)
	if err != nil {
		observability.RecordOperation(string(ledger.ActionEncode), "error")
		s.log.Error().Err(err).Int("message_bytes", len(message)).Msg("embed failed")
		return nil, LedgerEntry{}, err
	}

	entry := s.entry(ledger.ActionEncode, fileRef, rec.MessageSHA256, rec.Status)
	if err := s.ledger.Append(entry); err != nil {
		return nil, LedgerEntry{}, err
	}
	observability.RecordOperation(string(ledger.ActionEncode), string(rec.Status))
	s.log.Info().
		Str("file_ref", fileRef).
		Int("message_bytes", len(message)).
		Int("metadata_bytes", len(metadata)).
		Int("bpc", s.cfg.BitsPerChannel).
		Msg("encode complete")
	return stego, entry, nil
}

// Decode recovers message and metadata from a stego grid, repairing a
// single corrupted channel via parity when possible. The remember gate
// is checked first; integrity failures return no payload bytes.
func (s *Session) Decode(stego *CoverImage, fileRef string) ([]byte, []byte, IntegrityRecord, LedgerEntry, error) {
	if !s.state.RememberConsent() {
		observability.RecordConsentDenied(GateRemember)
		s.log.Warn().Str("gate", GateRemember).Msg("decode refused: consent missing")
		return nil, nil, IntegrityRecord{}, LedgerEntry{}, ConsentRequiredError{Gate: GateRemember}
	}

	res := channel.Extract(stego)
	if res.Legacy {
		return s.decodeLegacy(res, fileRef)
	}

	if res.Record == nil {
		err := res.Integrity.Err
		if err == nil {
			err = frame.ErrMalformedHeader
		}
		observability.RecordOperation(string(ledger.ActionDecode), string(StatusFailedCRC))
		s.log.Error().Err(err).Msg("integrity channel unreadable")
		return nil, nil, IntegrityRecord{Status: StatusFailedCRC}, LedgerEntry{}, err
	}

	out := integrity.VerifyAndRepair(res.Message.Raw, res.Metadata.Raw, res.Message.Frame, res.Metadata.Frame, *res.Record)
	switch out.Status {
	case StatusOK, StatusRecovered:
		if out.Status == StatusRecovered {
			observability.RecordRepair(out.CorrectedBytes)
			s.log.Warn().Int("corrected_bytes", out.CorrectedBytes).Msg("channel recovered with parity")
		}
		entry := s.entry(ledger.ActionDecode, fileRef, out.Record.MessageSHA256, out.Status)
		if err := s.ledger.Append(entry); err != nil {
			return nil, nil, IntegrityRecord{}, LedgerEntry{}, err
		}
		observability.RecordOperation(string(ledger.ActionDecode), string(out.Status))
		s.log.Info().Str("file_ref", fileRef).Str("status", string(out.Status)).Msg("decode complete")
		return out.Message, out.Metadata, out.Record, entry, nil
	case StatusFailedSHA:
		observability.RecordOperation(string(ledger.ActionDecode), string(out.Status))
		s.log.Error().Str("status", string(out.Status)).Msg("decode failed")
		return nil, nil, out.Record, LedgerEntry{}, ErrSHAMismatch
	default:
		observability.RecordOperation(string(ledger.ActionDecode), string(out.Status))
		s.log.Error().Str("status", string(out.Status)).Msg("decode failed")
		return nil, nil, out.Record, LedgerEntry{}, ErrCRCMismatch
	}
}

// decodeLegacy finishes a header-less first-generation decode: message
// channel only, nothing to verify or repair.
func (s *Session) decodeLegacy(res channel.Result, fileRef string) ([]byte, []byte, IntegrityRecord, LedgerEntry, error) {
	if res.Message.Err != nil {
		observability.RecordOperation(string(ledger.ActionDecode), "error")
		s.log.Error().Err(res.Message.Err).Msg("legacy decode failed")
		return nil, nil, IntegrityRecord{}, LedgerEntry{}, res.Message.Err
	}
	msg := res.Message.Frame.Payload
	rec := IntegrityRecord{Status: StatusLegacy, MessageSHA256: integrity.SHA256Hex(msg)}
	entry := s.entry(ledger.ActionDecode, fileRef, rec.MessageSHA256, rec.Status)
	if err := s.ledger.Append(entry); err != nil {
		return nil, nil, IntegrityRecord{}, LedgerEntry{}, err
	}
	observability.RecordOperation(string(ledger.ActionDecode), string(StatusLegacy))
	s.log.Info().Str("file_ref", fileRef).Msg("legacy decode complete")
	return msg, nil, rec, entry, nil
}

func (s *Session) entry(action ledger.Action, fileRef, messageSHA string, status IntegrityStatus) LedgerEntry {
	return LedgerEntry{
		Timestamp:       time.Now().UTC(),
		Action:          action,
		Caller:          s.cfg.Caller,
		FileRef:         fileRef,
		MessageSHA256:   messageSHA,
		IntegrityStatus: string(status),
		Ritual:          s.state.Steps(),
	}
}
