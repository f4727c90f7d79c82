// Package id defines the TypeID-based identifiers used by the credit client.
//
// Two kinds of identifier exist: the anonymous device id that is generated
// once per installation, and the pending-consumption id that doubles as the
// idempotency key when an offline charge is replayed against the billing
// service. Both are UUIDv7-backed.
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of entity encoded in a TypeID.
type Prefix string

const (
	PrefixDevice      Prefix = "dev"  // Anonymous device installation
	PrefixConsumption Prefix = "pcon" // Pending (offline) consumption
)

// ID wraps a TypeID in the form "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a fresh ID. It panics on an invalid prefix, which is a
// programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string of any prefix.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects it unless the prefix matches.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Kinds
// ──────────────────────────────────────────────────

// DeviceID identifies one installation (prefix "dev").
type DeviceID = ID

// ConsumptionID is issued for pending consumptions created locally (prefix
// "pcon"). Its string form is sent as the Idempotency-Key on replay.
type ConsumptionID = ID

// NewDeviceID generates a device id.
func NewDeviceID() ID { return New(PrefixDevice) }

// NewConsumptionID generates a pending consumption id.
func NewConsumptionID() ID { return New(PrefixConsumption) }

// ParseDeviceID parses s and validates the "dev" prefix.
func ParseDeviceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDevice) }

// ParseConsumptionID parses s and validates the "pcon" prefix.
func ParseConsumptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixConsumption) }

// ──────────────────────────────────────────────────
// Methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
