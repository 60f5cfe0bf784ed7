// Package shares tracks fungible claims on a pool's owned liquidity.
// Shares are minted on add-liquidity and burned on remove; total supply must
// track the pool's owned liquidity under whatever curve is in use.
package shares

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNonPositiveAmount  = errors.New("share amount must be positive")
	ErrInsufficientShares = errors.New("insufficient share balance")
	ErrSupplyOverflow     = errors.New("share supply overflows uint128")

	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Ledger is a single-pool share ledger. It is not safe for concurrent use;
// the host serializes calls the same way it serializes pool mutations.
type Ledger struct {
	balances map[common.Address]*big.Int
	total    *big.Int
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		total:    new(big.Int),
	}
}

// Mint credits amount shares to recipient.
func (l *Ledger) Mint(recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	next := new(big.Int).Add(l.total, amount)
	if next.Cmp(maxUint128) > 0 {
		return ErrSupplyOverflow
	}
	bal, ok := l.balances[recipient]
	if !ok {
		bal = new(big.Int)
		l.balances[recipient] = bal
	}
	bal.Add(bal, amount)
	l.total = next
	return nil
}

// Burn debits amount shares from owner.
func (l *Ledger) Burn(owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	bal, ok := l.balances[owner]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	bal.Sub(bal, amount)
	l.total.Sub(l.total, amount)
	return nil
}

// BalanceOf returns a copy of owner's share balance.
func (l *Ledger) BalanceOf(owner common.Address) *big.Int {
	if bal, ok := l.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the outstanding share supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.total)
}

// Snapshot captures the full ledger state for later restore. It exists so a
// failed top-level call can discard share mutations the same way the host
// ledger discards balance mutations.
func (l *Ledger) Snapshot() any {
	balances := make(map[common.Address]*big.Int, len(l.balances))
	for owner, bal := range l.balances {
		balances[owner] = new(big.Int).Set(bal)
	}
	return &Ledger{balances: balances, total: new(big.Int).Set(l.total)}
}

// Restore rewinds the ledger to a state captured by Snapshot. The snapshot
// is copied on the way in, so one snapshot can back out several attempts.
func (l *Ledger) Restore(snap any) {
	prev, ok := snap.(*Ledger)
	if !ok {
		return
	}
	balances := make(map[common.Address]*big.Int, len(prev.balances))
	for owner, bal := range prev.balances {
		balances[owner] = new(big.Int).Set(bal)
	}
	l.balances = balances
	l.total = new(big.Int).Set(prev.total)
}
