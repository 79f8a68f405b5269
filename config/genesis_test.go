package config

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_TestnetValid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestTestnetOperator_MatchesPubKey(t *testing.T) {
	pub, err := hex.DecodeString(TestnetOperatorPubKey)
	if err != nil {
		t.Fatalf("decode pubkey: %v", err)
	}
	if got := crypto.AddressFromPubKey(pub).String(); got != TestnetOperator {
		t.Errorf("AddressFromPubKey = %s, want %s", got, TestnetOperator)
	}

	priv, err := hex.DecodeString(TestnetOperatorPrivKey)
	if err != nil {
		t.Fatalf("decode privkey: %v", err)
	}
	key, err := crypto.PrivateKeyFromBytes(priv)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if hex.EncodeToString(key.PublicKey()) != TestnetOperatorPubKey {
		t.Error("testnet private key does not match the published public key")
	}
}

func TestIssuanceRules_TierAtClamps(t *testing.T) {
	r := MainnetGenesis().Issuance
	for _, stage := range []uint64{2, 3, 10, 1 << 40} {
		if got := r.TierAt(stage); got != r.Tiers[2] {
			t.Errorf("TierAt(%d) = %+v, want tier 2 %+v", stage, got, r.Tiers[2])
		}
	}
	if r.TierAt(0) != r.Tiers[0] || r.TierAt(1) != r.Tiers[1] {
		t.Error("TierAt should index stages 0 and 1 directly")
	}
}

func TestIssuanceRules_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *IssuanceRules)
		wantErr string
	}{
		{"retarget period one", func(r *IssuanceRules) { r.RetargetPeriod = 1 }, "retarget_period"},
		{"zero spacing", func(r *IssuanceRules) { r.TargetSpacing = 0 }, "target_spacing"},
		{"zero halving", func(r *IssuanceRules) { r.HalvingPeriod = 0 }, "halving_period"},
		{"zero stage span", func(r *IssuanceRules) { r.StageSpan = 0 }, "stage_span"},
		{"zero advance period", func(r *IssuanceRules) { r.AdvancePeriod = 0 }, "advance_period"},
		{"zero base reward", func(r *IssuanceRules) { r.BaseReward = 0 }, "base_reward"},
		{"zero max target", func(r *IssuanceRules) { r.MaxTarget = types.Target{} }, "max_target"},
		{"tier over 100", func(r *IssuanceRules) { r.Tiers[1] = Tier{MinerPercent: 80, PoolPercent: 30} }, "tier 1"},
		{"max target overflows retarget", func(r *IssuanceRules) {
			r.MaxTarget = types.TargetFromInt(new(uint256.Int).SetAllOne())
		}, "max_target too large"},
		{"bonus lump overflows", func(r *IssuanceRules) {
			r.BaseReward = 1 << 50
			r.AdvancePeriod = 1 << 20
		}, "bonus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := MainnetGenesis().Issuance
			tt.mutate(&r)
			err := r.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGenesis_Validate_AllocExceedsSupply(t *testing.T) {
	g := MainnetGenesis()
	g.Alloc = map[string]uint64{mainnetOperator: g.Issuance.MaxSupply + 1}
	if err := g.Validate(); err == nil {
		t.Error("alloc above max_supply should be rejected")
	}
}

func TestGenesis_Validate_BadAllocAddress(t *testing.T) {
	g := TestnetGenesis()
	g.Alloc = map[string]uint64{"kgx1notanaddress": 1}
	if err := g.Validate(); err == nil {
		t.Error("invalid alloc address should be rejected")
	}
}

func TestGenesis_Validate_RequiresOperator(t *testing.T) {
	g := MainnetGenesis()
	g.Operator = types.Address{}
	if err := g.Validate(); err == nil {
		t.Error("zero operator should be rejected")
	}
}

func TestGenesis_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := TestnetGenesis()
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if loaded.Issuance != g.Issuance {
		t.Errorf("issuance rules changed across save/load:\n got %+v\nwant %+v", loaded.Issuance, g.Issuance)
	}
	if loaded.Operator != g.Operator || loaded.LiquidityPool != g.LiquidityPool {
		t.Error("roles changed across save/load")
	}

	h1, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := loaded.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("genesis hash changed across save/load: %s != %s", h1, h2)
	}
}

func TestGenesis_HashDiffersByNetwork(t *testing.T) {
	m, err := MainnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	tn, err := TestnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if m == tn {
		t.Error("mainnet and testnet genesis should hash differently")
	}
}
