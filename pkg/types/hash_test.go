package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}
	if (Hash{0x01}).IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_Bytes_IsCopy(t *testing.T) {
	h := Hash{0x01, 0x02, 0x03}
	b := h.Bytes()
	if len(b) != HashSize {
		t.Fatalf("Bytes() length = %d, want %d", len(b), HashSize)
	}
	b[0] = 0xFF
	if h[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestHexToHash(t *testing.T) {
	valid := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid", input: valid, want: valid},
		{name: "0x prefix", input: "0x" + valid, want: valid},
		{name: "all zeros", input: strings.Repeat("0", 64), want: strings.Repeat("0", 64)},
		{name: "too short", input: "abcd", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 66), wantErr: true},
		{name: "invalid hex character", input: strings.Repeat("g", 64), wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := HexToHash(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("HexToHash(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("HexToHash(%q) unexpected error: %v", tt.input, err)
			}
			if h.String() != tt.want {
				t.Errorf("HexToHash(%q) = %s, want %s", tt.input, h, tt.want)
			}
		})
	}
}

func TestNonce_JSON(t *testing.T) {
	n := Nonce{0xde, 0xad, 0xbe, 0xef}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasPrefix(string(data), `"deadbeef`) {
		t.Errorf("Marshal = %s, want hex string starting with deadbeef", data)
	}

	var got Nonce
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != n {
		t.Errorf("Unmarshal = %s, want %s", got, n)
	}

	if err := json.Unmarshal([]byte(`""`), &got); err != nil {
		t.Fatalf("Unmarshal empty: %v", err)
	}
	if !got.IsZero() {
		t.Error("empty string should decode to the zero nonce")
	}
}
