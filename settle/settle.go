// Package settle converts a signed net balance requirement for one currency
// into the correct settlement action against the ledger. It is a stateless
// protocol adapter: funds either move as external assets or as claim tokens,
// symmetrically for both directions.
package settle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var ErrNegativeAmount = errors.New("settlement amount must not be negative")

// Ledger is the slice of the pool manager settlement primitives this package
// needs.
type Ledger interface {
	PayIn(c types.Currency, payer common.Address, amount *big.Int) error
	PayOut(c types.Currency, recipient common.Address, amount *big.Int) error
	MintClaims(c types.Currency, owner common.Address, amount *big.Int) error
	BurnClaims(c types.Currency, owner common.Address, amount *big.Int) error
}

// Settle pays amount of c into the ledger on behalf of payer. With burnClaims
// set the payer's existing claim-token balance is redeemed instead of moving
// the asset. Amount is a magnitude; zero is a no-op.
func Settle(l Ledger, c types.Currency, payer common.Address, amount *big.Int, burnClaims bool) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if burnClaims {
		return l.BurnClaims(c, payer, amount)
	}
	return l.PayIn(c, payer, amount)
}

// Take pays amount of c out of the ledger to recipient. With mintClaims set
// the recipient is credited a claim-token balance instead of receiving the
// asset. Amount is a magnitude; zero is a no-op.
func Take(l Ledger, c types.Currency, recipient common.Address, amount *big.Int, mintClaims bool) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if mintClaims {
		return l.MintClaims(c, recipient, amount)
	}
	return l.PayOut(c, recipient, amount)
}
