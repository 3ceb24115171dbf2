/*
This file contains the vault state machine. Active and Halted toggle through Halt and Resume,
Terminated is final and reached through Unlock or when the last share is burned.
*/

package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/types"
)

// Phase is the state machine position derived from the halted and terminated flags.
type Phase string

const (
	PhaseActive     Phase = "active"
	PhaseHalted     Phase = "halted"
	PhaseTerminated Phase = "terminated"
)

func (s *State) Phase() Phase {
	switch {
	case s.Terminated:
		return PhaseTerminated
	case s.Halted:
		return PhaseHalted
	default:
		return PhaseActive
	}
}

// Halt blocks new deposits and redemptions. Owner or operator only.
func (v *Vault) Halt(ctx context.Context, sender string) error {
	return v.setHalted(ctx, sender, true)
}

// Resume reverses Halt. Owner or operator only.
func (v *Vault) Resume(ctx context.Context, sender string) error {
	return v.setHalted(ctx, sender, false)
}

func (v *Vault) setHalted(ctx context.Context, sender string, halted bool) error {
	op := "resume"
	if halted {
		op = "halt"
	}
	return v.apply(ctx, op, sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if tx.state.Terminated {
			return types.ErrVaultClosed
		}
		tx.state.Halted = halted
		tx.emit(op)
		tx.log.Info().Bool("halted", halted).Msg("Vault halt flag changed")
		return nil
	})
}

// Unlock terminates the vault. The operator may call it at any time; anyone else only once the
// operator has been inactive for longer than config.MaxUpdateInterval. Pending deposits are
// refunded, the position is closed with its rewards collected, and pending burns are settled.
func (v *Vault) Unlock(ctx context.Context, sender string) error {
	return v.apply(ctx, "unlock", sender, func(ctx context.Context, tx *txn) error {
		s := tx.state
		if s.Terminated {
			return types.ErrVaultClosed
		}
		if deadline := s.LastUpdate.Add(config.MaxUpdateInterval); sender != s.Operator && tx.now.Before(deadline) {
			remaining := uint64(deadline.Sub(tx.now).Seconds())
			return errorsmod.Wrapf(types.ErrCantUnlockYet, "%d seconds remaining", remaining)
		}

		refunded := 0
		for _, entry := range s.mintEntries() {
			if err := tx.refundPendingMint(ctx, entry.Address); err != nil {
				return err
			}
			refunded++
		}

		if s.PositionOpen {
			if _, err := tx.collectRewards(ctx, true); err != nil {
				return err
			}
			pos, err := tx.host.Position(ctx, s.PositionID)
			if err != nil {
				return errorsmod.Wrapf(types.ErrNoPositionsOpen, "position %d: %v", s.PositionID, err)
			}
			if pos.Liquidity.IsPositive() {
				if _, _, err := tx.withdraw(ctx, pos.Liquidity); err != nil {
					return err
				}
			} else {
				s.PositionOpen = false
				s.PositionID = 0
			}
		}

		s.Halted = false
		s.Terminated = true
		tx.emit("terminate", sdk.NewAttribute("sender", tx.sender))
		tx.log.Warn().
			Bool("by_operator", sender == s.Operator).
			Int("refunded", refunded).
			Msg("Vault terminated")

		_, err := tx.processBurns(ctx)
		return err
	})
}

// UpdateWhitelist adds and removes cap-exempt depositors. Owner or operator only.
func (v *Vault) UpdateWhitelist(ctx context.Context, sender string, add, remove []string) error {
	return v.apply(ctx, "whitelist", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		s := tx.state
		for _, addr := range add {
			if addr == "" {
				return errorsmod.Wrap(types.ErrInvalidConfig, "empty address")
			}
			if s.isWhitelisted(addr) {
				return errorsmod.Wrapf(types.ErrAddressInWhitelist, "address %s", addr)
			}
			s.Whitelist.Set(addr, struct{}{})
			tx.emit("whitelist_add", sdk.NewAttribute("address", addr))
		}
		for _, addr := range remove {
			if _, ok := s.Whitelist.Delete(addr); !ok {
				return errorsmod.Wrapf(types.ErrAddressNotInWhitelist, "address %s", addr)
			}
			tx.emit("whitelist_remove", sdk.NewAttribute("address", addr))
		}
		return nil
	})
}

// ModifyOperator hands the position management role to a new address. Owner or operator only.
func (v *Vault) ModifyOperator(ctx context.Context, sender, operator string) error {
	return v.apply(ctx, "modify_operator", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if operator == "" {
			return errorsmod.Wrap(types.ErrInvalidConfig, "operator address is required")
		}
		tx.state.Operator = operator
		tx.emit("modify_operator", sdk.NewAttribute("new_operator", operator))
		return nil
	})
}

// ModifyConfig replaces the configuration. The assets never change and the pool only while no
// position is open. The cap flag is recomputed from live prices when a cap is set.
func (v *Vault) ModifyConfig(ctx context.Context, sender string, cfg types.Config) error {
	return v.apply(ctx, "modify_config", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		s := tx.state
		old := s.Config
		if !sameAsset(cfg.Asset0, old.Asset0) || !sameAsset(cfg.Asset1, old.Asset1) {
			return types.ErrCannotChangeAssets
		}
		if cfg.PoolID != old.PoolID {
			if s.PositionOpen {
				return errorsmod.Wrapf(types.ErrCannotChangePoolID, "position %d is open", s.PositionID)
			}
			if err := verifyPool(ctx, tx.host, cfg); err != nil {
				return err
			}
		}
		if cfg.CommissionReceiver == "" {
			cfg.CommissionReceiver = old.CommissionReceiver
		}
		if err := cfg.Validate(); err != nil {
			return errorsmod.Wrap(types.ErrInvalidConfig, err.Error())
		}
		s.Config = cfg

		if cfg.DollarCap != nil {
			bal, err := tx.vaultBalances(ctx, true)
			if err != nil {
				return err
			}
			p0, p1, err := tx.v.prices.Prices(ctx, cfg, tx.now)
			if err != nil {
				return err
			}
			s.CapReached = dollars(bal, p0, p1).GTE(*cfg.DollarCap)
		} else {
			s.CapReached = false
		}

		tx.emit("modify_config")
		tx.log.Info().Bool("cap_reached", s.CapReached).Msg("Config modified")
		return nil
	})
}

func sameAsset(a, b types.Asset) bool {
	return a.Denom == b.Denom &&
		a.PriceFeedID == b.PriceFeedID &&
		a.Decimals == b.Decimals &&
		intEqual(a.MinDeposit, b.MinDeposit)
}

func intEqual(a, b math.Int) bool {
	if a.IsNil() || b.IsNil() {
		return a.IsNil() == b.IsNil()
	}
	return a.Equal(b)
}
