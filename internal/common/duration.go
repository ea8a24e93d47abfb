package common

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Duration wraps time.Duration so it can be parsed from and rendered back to
// the short unit-suffixed form ("30s", "1h30m") in YAML, JSON, and CLI flag
// values, rather than the raw nanosecond integer time.Duration marshals to
// by default.
type Duration struct {
	time.Duration
}

// NewDuration wraps d as a Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// JSONSchema gives Duration a string schema instead of the struct schema the
// reflector would otherwise derive from its embedded time.Duration field.
func (d Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units, e.g. '30s', '5m', '1h30m'",
		Examples:    []interface{}{"1m", "300ms", "1h30m"},
	}
}
