package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

func TestTarget_IntRoundtrip(t *testing.T) {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 234)
	tgt := TargetFromInt(v)
	if tgt[2] != 0x04 {
		t.Fatalf("2^234 should set byte 2 to 0x04, got %x", tgt[2])
	}
	if !tgt.Int().Eq(v) {
		t.Error("Int() should round-trip TargetFromInt")
	}
}

func TestTarget_Cmp(t *testing.T) {
	a := TargetFromInt(uint256.NewInt(100))
	b := TargetFromInt(uint256.NewInt(101))
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Errorf("Cmp ordering wrong: %d %d %d", a.Cmp(b), b.Cmp(a), a.Cmp(a))
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0x1", want: 1},
		{in: "ff", want: 255},
		{in: "0x0100", want: 256},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "zz", wantErr: true},
		{in: "0x1" + strings.Repeat("0", 64), wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTarget(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTarget(%q): %v", tt.in, err)
			continue
		}
		if got.Int().Uint64() != tt.want {
			t.Errorf("ParseTarget(%q) = %d, want %d", tt.in, got.Int().Uint64(), tt.want)
		}
	}
}

func TestTarget_JSON(t *testing.T) {
	tgt := TargetFromInt(uint256.NewInt(0xabcdef))
	data, err := json.Marshal(tgt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"0x0000000000000000000000000000000000000000000000000000000000abcdef"`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
	var got Target
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != tgt {
		t.Errorf("Unmarshal = %s, want %s", got, tgt)
	}
}
