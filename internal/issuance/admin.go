package issuance

import (
	"github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Admin holds the operator-controlled settings of an issuer.
type Admin struct {
	Operator      types.Address `json:"operator"`
	Paused        bool          `json:"paused"`
	LiquidityPool types.Address `json:"liquidity_pool"`
	Governance    types.Address `json:"governance"`
}

// GovernanceConfigured reports whether a governance address is set.
func (a Admin) GovernanceConfigured() bool {
	return !a.Governance.IsZero()
}

// Admin returns the committed admin record.
func (i *Issuer) Admin() Admin {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.admin
}

// Pause stops Submit from accepting proofs. Read-only queries keep working.
func (i *Issuer) Pause(caller types.Address) error {
	return i.updateAdmin(caller, "pause", func(a *Admin) { a.Paused = true })
}

// Resume re-enables Submit after Pause.
func (i *Issuer) Resume(caller types.Address) error {
	return i.updateAdmin(caller, "resume", func(a *Admin) { a.Paused = false })
}

// SetLiquidityPool changes the account credited with the pool reward. The
// zero address disables pool minting.
func (i *Issuer) SetLiquidityPool(caller, pool types.Address) error {
	return i.updateAdmin(caller, "set_liquidity_pool", func(a *Admin) { a.LiquidityPool = pool })
}

// SetGovernance changes the governance address. The zero address disables
// the governance bonus and advancement.
func (i *Issuer) SetGovernance(caller, governance types.Address) error {
	return i.updateAdmin(caller, "set_governance", func(a *Admin) { a.Governance = governance })
}

func (i *Issuer) updateAdmin(caller types.Address, action string, apply func(*Admin)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if caller != i.admin.Operator {
		log.Issuance.Warn().
			Str("action", action).
			Str("caller", caller.String()).
			Msg("Rejected admin call from non-operator")
		return ErrUnauthorized
	}

	next := i.admin
	apply(&next)
	if err := i.store.SaveAdmin(next); err != nil {
		return err
	}
	i.admin = next

	log.Issuance.Info().
		Str("action", action).
		Bool("paused", next.Paused).
		Str("pool", next.LiquidityPool.String()).
		Str("governance", next.Governance.String()).
		Msg("Admin settings updated")
	return nil
}
