package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddress_IsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero-value Address should be zero")
	}
	if (Address{0x01}).IsZero() {
		t.Error("non-zero Address should not be zero")
	}
}

func TestAddress_String(t *testing.T) {
	a := Address{0xab}
	a[19] = 0xcd
	s := a.String()
	if len(s) != 2+2*AddressSize {
		t.Fatalf("String() length = %d, want %d", len(s), 2+2*AddressSize)
	}
	if !strings.HasPrefix(s, "0xab") || !strings.HasSuffix(s, "cd") {
		t.Errorf("String() = %s, want 0xab...cd", s)
	}
}

func TestParseAddress(t *testing.T) {
	raw := "8f3a44b8056cafec368d1a5c2fb9c3d4e4a0b1f2"
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "raw hex", input: raw},
		{name: "0x prefix", input: "0x" + raw},
		{name: "upper 0X prefix", input: "0X" + raw},
		{name: "surrounding space", input: "  0x" + raw + " "},
		{name: "empty", input: "", wantErr: true},
		{name: "short", input: "0x1234", wantErr: true},
		{name: "not hex", input: strings.Repeat("z", 40), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) should fail", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tt.input, err)
			}
			if a.String() != "0x"+raw {
				t.Errorf("ParseAddress(%q) = %s, want 0x%s", tt.input, a, raw)
			}
		})
	}
}

func TestAddress_JSON_Roundtrip(t *testing.T) {
	a := Address{0x01, 0x02, 0x03}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Address
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != a {
		t.Errorf("roundtrip = %s, want %s", got, a)
	}
}
