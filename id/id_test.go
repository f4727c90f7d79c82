package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/credits/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"DeviceID", id.NewDeviceID, "dev_"},
		{"ConsumptionID", id.NewConsumptionID, "pcon_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"DeviceID", id.NewDeviceID, id.ParseDeviceID},
		{"ConsumptionID", id.NewConsumptionID, id.ParseConsumptionID},
		{"Any", id.NewConsumptionID, id.Parse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossKindRejection(t *testing.T) {
	if _, err := id.ParseDeviceID(id.NewConsumptionID().String()); err == nil {
		t.Error("ParseDeviceID accepted a pcon_ id")
	}
	if _, err := id.ParseConsumptionID(id.NewDeviceID().String()); err == nil {
		t.Error("ParseConsumptionID accepted a dev_ id")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-typeid", "pcon_"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	i := id.NewDeviceID()
	parsed, err := id.Parse("  " + i.String() + "\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("expected empty rendering, got %q / %q", i.String(), i.Prefix())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewConsumptionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil || !empty.IsNil() {
		t.Errorf("empty text should decode to Nil, err=%v", err)
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewDeviceID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(original.String())); err != nil || fromBytes.String() != original.String() {
		t.Errorf("Scan([]byte) = %q, %v", fromBytes.String(), err)
	}

	var nilID id.ID
	if v, _ := nilID.Value(); v != nil {
		t.Errorf("expected nil value for nil ID, got %v", v)
	}
	if err := scanned.Scan(nil); err != nil || !scanned.IsNil() {
		t.Errorf("Scan(nil) should reset to Nil, err=%v", err)
	}
	if err := scanned.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := id.NewConsumptionID().String()
		if seen[s] {
			t.Fatalf("duplicate id %q", s)
		}
		seen[s] = true
	}
}
