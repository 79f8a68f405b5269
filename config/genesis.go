package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/powmint/internal/safemath"
	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// =============================================================================
// Issuance Rules (immutable, defined in genesis)
// These MUST match across all nodes or reward accounting diverges.
// =============================================================================

// Denomination constants.
// 1 coin = 10^8 base units. All ledger values are in base units.
const (
	Decimals  = 8
	Coin      = 100_000_000 // 10^8 base units per coin
	MilliCoin = 100_000     // 10^5
)

// TierCount is the number of reward stages. Stages past the last clamp to it.
const TierCount = 3

// Tier is the reward split for one stage, in percent of the base reward.
type Tier struct {
	MinerPercent uint64 `json:"miner_percent"`
	PoolPercent  uint64 `json:"pool_percent"`
	BonusPercent uint64 `json:"bonus_percent"`
}

// Sum returns the total percentage allocated by the tier.
func (t Tier) Sum() uint64 {
	return t.MinerPercent + t.PoolPercent + t.BonusPercent
}

// IssuanceRules holds the constants of the reward schedule and the
// difficulty controller. They are fixed at initialization.
type IssuanceRules struct {
	// Retarget
	RetargetPeriod uint64       `json:"retarget_period"` // Submissions per retarget window
	TargetSpacing  uint64       `json:"target_spacing"`  // Nominal seconds between submissions
	MaxTarget      types.Target `json:"max_target"`      // Easiest (and initial) target

	// Rewards
	BaseReward    uint64          `json:"base_reward"`    // Base units before tier split
	HalvingPeriod uint64          `json:"halving_period"` // Heights between halvings
	StageSpan     uint64          `json:"stage_span"`     // Heights per reward stage
	Tiers         [TierCount]Tier `json:"tiers"`
	MaxSupply     uint64          `json:"max_supply"` // Ledger cap in base units (0 = unlimited)

	// Governance hand-off
	AdvancePeriod          uint64 `json:"advance_period"`           // Heights between governance advances
	GovernanceActiveHeight uint64 `json:"governance_active_height"` // First advance boundary
}

// ExpectedSpan returns the nominal duration of one retarget window.
func (r *IssuanceRules) ExpectedSpan() uint64 {
	return r.RetargetPeriod * r.TargetSpacing
}

// TierAt returns the tier for a stage, clamping stages past the table.
func (r *IssuanceRules) TierAt(stage uint64) Tier {
	if stage >= TierCount {
		stage = TierCount - 1
	}
	return r.Tiers[stage]
}

// Genesis holds the chain identity, initial roles and issuance rules.
// This is immutable after launch.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`
	Timestamp uint64 `json:"timestamp"`

	// Initial roles. LiquidityPool and Governance may be zero (unset) and
	// changed later by the operator.
	Operator      types.Address `json:"operator"`
	LiquidityPool types.Address `json:"liquidity_pool"`
	Governance    types.Address `json:"governance"`

	// Initial allocations (address -> balance in base units)
	Alloc map[string]uint64 `json:"alloc,omitempty"`

	Issuance IssuanceRules `json:"issuance"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet operator.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetOperatorPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetOperatorPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetOperatorPrivKey is the private key (hex) derived from TestnetMnemonic.
	TestnetOperatorPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"

	// TestnetOperator is the address derived from TestnetOperatorPubKey.
	// Address = BLAKE3(pubkey)[:20]
	TestnetOperator = "0x8f3a44b8056cafec368dea0cbe0ad1d9bc3f4305"
)

// mainnetOperator administers the mainnet issuer.
const mainnetOperator = "0xe9d69ff8b240f30f2caf5ad76c788b96ef0a7c2d"

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "powmint-mainnet-1",
		ChainName: "Powmint Mainnet",
		Symbol:    "PMT",
		Timestamp: 1791936000, // 2026-10-14
		Operator:  mustAddress(mainnetOperator),
		Issuance: IssuanceRules{
			RetargetPeriod: 1024,
			TargetSpacing:  600, // 10 minutes
			MaxTarget:      powerOfTwoTarget(234),
			BaseReward:     50 * Coin,
			HalvingPeriod:  210_000,
			StageSpan:      100_000,
			Tiers: [TierCount]Tier{
				{MinerPercent: 100},
				{MinerPercent: 80, PoolPercent: 20},
				{MinerPercent: 60, PoolPercent: 30, BonusPercent: 10},
			},
			MaxSupply:              21_000_000 * Coin,
			AdvancePeriod:          1000,
			GovernanceActiveHeight: 200_000,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "powmint-testnet-1"
	g.ChainName = "Powmint Testnet"
	g.Operator = mustAddress(TestnetOperator)
	g.LiquidityPool = mustAddress(TestnetOperator)

	// Short windows so every stage is reachable in a test session.
	g.Issuance.RetargetPeriod = 10
	g.Issuance.TargetSpacing = 30
	g.Issuance.MaxTarget = powerOfTwoTarget(240)
	g.Issuance.HalvingPeriod = 1000
	g.Issuance.StageSpan = 100
	g.Issuance.AdvancePeriod = 10
	g.Issuance.GovernanceActiveHeight = 200
	g.Issuance.MaxSupply = 0

	g.Alloc = map[string]uint64{
		TestnetOperator: 1000 * Coin,
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

func powerOfTwoTarget(bits uint) types.Target {
	return types.TargetFromInt(new(uint256.Int).Lsh(uint256.NewInt(1), bits))
}

func mustAddress(s string) types.Address {
	a, err := types.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Operator.IsZero() {
		return fmt.Errorf("operator is required")
	}
	if err := g.Issuance.Validate(); err != nil {
		return err
	}

	// Validate alloc addresses and check total doesn't exceed max supply.
	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		sum, err := safemath.Add(totalAlloc, v)
		if err != nil {
			return fmt.Errorf("genesis allocations: %w", err)
		}
		totalAlloc = sum
	}
	if g.Issuance.MaxSupply > 0 && totalAlloc > g.Issuance.MaxSupply {
		return fmt.Errorf("genesis allocations (%d) exceed max_supply (%d)",
			totalAlloc, g.Issuance.MaxSupply)
	}

	return nil
}

// Validate checks the issuance rules for values that would make retargeting
// or reward computation fail at runtime.
func (r *IssuanceRules) Validate() error {
	if r.RetargetPeriod < 2 {
		return fmt.Errorf("retarget_period must be at least 2")
	}
	if r.TargetSpacing == 0 {
		return fmt.Errorf("target_spacing must be positive")
	}
	if r.HalvingPeriod == 0 {
		return fmt.Errorf("halving_period must be positive")
	}
	if r.StageSpan == 0 {
		return fmt.Errorf("stage_span must be positive")
	}
	if r.AdvancePeriod == 0 {
		return fmt.Errorf("advance_period must be positive")
	}
	if r.BaseReward == 0 {
		return fmt.Errorf("base_reward must be positive")
	}
	if r.MaxTarget.IsZero() {
		return fmt.Errorf("max_target must be positive")
	}

	span, err := safemath.Mul(r.RetargetPeriod, r.TargetSpacing)
	if err != nil {
		return fmt.Errorf("expected span: %w", err)
	}
	if span < 4 {
		return fmt.Errorf("expected span (%d) must be at least 4 seconds", span)
	}
	maxSpan, err := safemath.Mul(span, 4)
	if err != nil {
		return fmt.Errorf("expected span: %w", err)
	}
	// The retarget multiply runs on targets <= max_target and spans <= 4x
	// the expected span.
	if _, err := safemath.Mul256(r.MaxTarget.Int(), uint256.NewInt(maxSpan)); err != nil {
		return fmt.Errorf("max_target too large for retarget window: %w", err)
	}

	for i, t := range r.Tiers {
		if t.MinerPercent > 100 || t.PoolPercent > 100 || t.BonusPercent > 100 || t.Sum() > 100 {
			return fmt.Errorf("tier %d percentages exceed 100", i)
		}
		miner, err := safemath.MulDiv(r.BaseReward, t.MinerPercent, 100)
		if err != nil {
			return fmt.Errorf("tier %d miner reward: %w", i, err)
		}
		if _, err := safemath.MulDiv(r.BaseReward, t.PoolPercent, 100); err != nil {
			return fmt.Errorf("tier %d pool reward: %w", i, err)
		}
		bonus, err := safemath.MulDiv(r.BaseReward, t.BonusPercent, 100)
		if err != nil {
			return fmt.Errorf("tier %d bonus: %w", i, err)
		}
		lump, err := safemath.Mul(bonus, r.AdvancePeriod)
		if err != nil {
			return fmt.Errorf("tier %d bonus lump: %w", i, err)
		}
		if _, err := safemath.Add(miner, lump); err != nil {
			return fmt.Errorf("tier %d miner reward with bonus: %w", i, err)
		}
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
