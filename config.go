package veil

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config shapes one session. Zero values fall back to DefaultConfig.
type Config struct {
	// LedgerPath is the fixed external path the JSONL audit ledger
	// lives at. Ignored when a ledger is injected directly.
	LedgerPath string
	// Caller is the caller-supplied identifier stamped into ledger
	// entries.
	Caller string
	// BitsPerChannel is 1 or 4.
	BitsPerChannel int
	// WithCRC adds a CRC32 word to each channel frame header.
	WithCRC bool
	// StrictConsentOrder requires ritual steps to be acknowledged in
	// declared order instead of only checking completeness.
	StrictConsentOrder bool
	// LogLevel overrides the environment-derived log level when set.
	LogLevel string
}

// DefaultConfig returns the stock session configuration.
func DefaultConfig() Config {
	return Config{
		LedgerPath:     "veil.ledger",
		Caller:         "anonymous",
		BitsPerChannel: 1,
		WithCRC:        true,
	}
}

type fileConfig struct {
	LedgerPath         string `toml:"ledger_path"`
	Caller             string `toml:"caller"`
	BitsPerChannel     int    `toml:"bits_per_channel"`
	WithCRC            bool   `toml:"with_crc"`
	StrictConsentOrder bool   `toml:"strict_consent_order"`
	LogLevel           string `toml:"log_level"`
}

// LoadConfig reads a TOML session config, overlaying defaults only
// with keys the file actually defines.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load session config: %w", err)
	}

	if meta.IsDefined("ledger_path") {
		if p := strings.TrimSpace(raw.LedgerPath); p != "" {
			cfg.LedgerPath = p
		}
	}
	if meta.IsDefined("caller") {
		if c := strings.TrimSpace(raw.Caller); c != "" {
			cfg.Caller = c
		}
	}
	if meta.IsDefined("bits_per_channel") {
		cfg.BitsPerChannel = raw.BitsPerChannel
	}
	if meta.IsDefined("with_crc") {
		cfg.WithCRC = raw.WithCRC
	}
	if meta.IsDefined("strict_consent_order") {
		cfg.StrictConsentOrder = raw.StrictConsentOrder
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}
