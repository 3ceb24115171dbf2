package vault

import (
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/tidwall/btree"

	"github.com/elys-network/clvault/internal/types"
)

var ErrCorruptSnapshot = errors.New("snapshot violates vault invariants")

// State is everything the vault owns. Operations work on a clone and the vault swaps it in
// only after the whole operation succeeded.
type State struct {
	VaultAddress string
	Owner        string
	Operator     string
	Denom        string
	Config       types.Config

	Supply       math.Int
	PositionOpen bool
	PositionID   uint64
	Halted       bool
	Terminated   bool
	CapReached   bool
	LastUpdate   time.Time

	AssetsPendingMint   types.AssetAmounts // Always the sum of PendingMints
	CommissionRewards   types.AssetAmounts
	UncompoundedRewards sdk.Coins

	// Address keyed, iterated in lexicographic order.
	PendingMints *btree.Map[string, types.PendingMint]
	PendingBurns *btree.Map[string, math.Int]
	Whitelist    *btree.Map[string, struct{}]
}

func newState() *State {
	return &State{
		Supply:              math.ZeroInt(),
		AssetsPendingMint:   types.ZeroAmounts(),
		CommissionRewards:   types.ZeroAmounts(),
		UncompoundedRewards: sdk.NewCoins(),
		PendingMints:        btree.NewMap[string, types.PendingMint](0),
		PendingBurns:        btree.NewMap[string, math.Int](0),
		Whitelist:           btree.NewMap[string, struct{}](0),
	}
}

// Clone returns a copy that can be mutated without affecting s. The queues are copy-on-write.
func (s *State) Clone() *State {
	c := *s
	c.UncompoundedRewards = append(sdk.Coins(nil), s.UncompoundedRewards...)
	c.PendingMints = s.PendingMints.Copy()
	c.PendingBurns = s.PendingBurns.Copy()
	c.Whitelist = s.Whitelist.Copy()
	return &c
}

func (s *State) queueMint(addr string, funds types.AssetAmounts, minSharesOut *math.Int) {
	entry, ok := s.PendingMints.Get(addr)
	if !ok {
		entry = types.PendingMint{Funds: types.ZeroAmounts()}
	}
	entry.Funds = entry.Funds.Add(funds)
	if minSharesOut != nil {
		entry.MinSharesOut = minSharesOut
	}
	s.PendingMints.Set(addr, entry)
	s.AssetsPendingMint = s.AssetsPendingMint.Add(funds)
}

// dequeueMint removes the entry and releases exactly its funds from the aggregate.
func (s *State) dequeueMint(addr string) (types.PendingMint, bool) {
	entry, ok := s.PendingMints.Delete(addr)
	if !ok {
		return types.PendingMint{}, false
	}
	s.AssetsPendingMint = s.AssetsPendingMint.Sub(entry.Funds)
	return entry, true
}

func (s *State) queueBurn(addr string, shares math.Int) {
	current, ok := s.PendingBurns.Get(addr)
	if !ok {
		current = math.ZeroInt()
	}
	s.PendingBurns.Set(addr, current.Add(shares))
}

func (s *State) mintEntries() []types.MintEntry {
	entries := make([]types.MintEntry, 0, s.PendingMints.Len())
	s.PendingMints.Scan(func(addr string, pending types.PendingMint) bool {
		entries = append(entries, types.MintEntry{Address: addr, Pending: pending})
		return true
	})
	return entries
}

func (s *State) burnEntries() []types.BurnEntry {
	entries := make([]types.BurnEntry, 0, s.PendingBurns.Len())
	s.PendingBurns.Scan(func(addr string, shares math.Int) bool {
		entries = append(entries, types.BurnEntry{Address: addr, Shares: shares})
		return true
	})
	return entries
}

func (s *State) isWhitelisted(addr string) bool {
	_, ok := s.Whitelist.Get(addr)
	return ok
}

// CheckInvariants verifies the accounting identities that must hold between operations.
func (s *State) CheckInvariants() error {
	var errs []error

	sum := types.ZeroAmounts()
	s.PendingMints.Scan(func(addr string, pending types.PendingMint) bool {
		if pending.Funds.Amount0.IsNegative() || pending.Funds.Amount1.IsNegative() {
			errs = append(errs, fmt.Errorf("negative pending mint for %s", addr))
		}
		sum = sum.Add(pending.Funds)
		return true
	})
	if !sum.Equal(s.AssetsPendingMint) {
		errs = append(errs, fmt.Errorf("pending mint aggregate %s/%s does not match entries %s/%s",
			s.AssetsPendingMint.Amount0, s.AssetsPendingMint.Amount1, sum.Amount0, sum.Amount1))
	}

	if s.Supply.IsNegative() {
		errs = append(errs, fmt.Errorf("negative supply %s", s.Supply))
	}
	burns := math.ZeroInt()
	s.PendingBurns.Scan(func(_ string, shares math.Int) bool {
		burns = burns.Add(shares)
		return true
	})
	if burns.GT(s.Supply) {
		errs = append(errs, fmt.Errorf("pending burns %s exceed supply %s", burns, s.Supply))
	}
	if s.CommissionRewards.Amount0.IsNegative() || s.CommissionRewards.Amount1.IsNegative() {
		errs = append(errs, errors.New("negative commission"))
	}
	if !s.PositionOpen && s.PositionID != 0 {
		errs = append(errs, fmt.Errorf("position id %d recorded without an open position", s.PositionID))
	}
	return errors.Join(errs...)
}

// Export serializes the state.
func (s *State) Export() types.VaultSnapshot {
	whitelist := make([]string, 0, s.Whitelist.Len())
	s.Whitelist.Scan(func(addr string, _ struct{}) bool {
		whitelist = append(whitelist, addr)
		return true
	})
	return types.VaultSnapshot{
		VaultAddress:        s.VaultAddress,
		Owner:               s.Owner,
		Operator:            s.Operator,
		Denom:               s.Denom,
		Config:              s.Config,
		Supply:              s.Supply,
		PositionOpen:        s.PositionOpen,
		PositionID:          s.PositionID,
		Halted:              s.Halted,
		Terminated:          s.Terminated,
		CapReached:          s.CapReached,
		LastUpdate:          s.LastUpdate,
		AssetsPendingMint:   s.AssetsPendingMint,
		CommissionRewards:   s.CommissionRewards,
		UncompoundedRewards: s.UncompoundedRewards,
		PendingMints:        s.mintEntries(),
		PendingBurns:        s.burnEntries(),
		Whitelist:           whitelist,
	}
}

// StateFromSnapshot rebuilds a state and rejects snapshots that break the invariants.
func StateFromSnapshot(snap types.VaultSnapshot) (*State, error) {
	s := newState()
	s.VaultAddress = snap.VaultAddress
	s.Owner = snap.Owner
	s.Operator = snap.Operator
	s.Denom = snap.Denom
	s.Config = snap.Config
	if !snap.Supply.IsNil() {
		s.Supply = snap.Supply
	}
	s.PositionOpen = snap.PositionOpen
	s.PositionID = snap.PositionID
	s.Halted = snap.Halted
	s.Terminated = snap.Terminated
	s.CapReached = snap.CapReached
	s.LastUpdate = snap.LastUpdate
	s.CommissionRewards = orZero(snap.CommissionRewards)
	if snap.UncompoundedRewards != nil {
		s.UncompoundedRewards = snap.UncompoundedRewards
	}

	for _, e := range snap.PendingMints {
		s.queueMint(e.Address, orZero(e.Pending.Funds), e.Pending.MinSharesOut)
	}
	for _, e := range snap.PendingBurns {
		s.queueBurn(e.Address, e.Shares)
	}
	for _, addr := range snap.Whitelist {
		s.Whitelist.Set(addr, struct{}{})
	}

	if !orZero(snap.AssetsPendingMint).Equal(s.AssetsPendingMint) {
		return nil, fmt.Errorf("%w: pending mint aggregate does not match entries", ErrCorruptSnapshot)
	}
	if err := s.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return s, nil
}

func orZero(a types.AssetAmounts) types.AssetAmounts {
	if a.Amount0.IsNil() {
		a.Amount0 = math.ZeroInt()
	}
	if a.Amount1.IsNil() {
		a.Amount1 = math.ZeroInt()
	}
	return a
}
