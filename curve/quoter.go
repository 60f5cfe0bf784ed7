package curve

import "math/big"

// QuoteParams describes one swap leg for the quoter: the direction, whether
// the specified side is the input, and the specified amount as a magnitude.
type QuoteParams struct {
	ExactInput      bool
	ZeroForOne      bool
	SpecifiedAmount *big.Int
}

// Quoter is the pluggable pricing function of a curve hook. Given the
// specified amount it returns the unspecified amount, also as a magnitude.
// Implementations must not mutate SpecifiedAmount.
type Quoter interface {
	QuoteUnspecified(p QuoteParams) (*big.Int, error)
}

// QuoterFunc adapts a function to the Quoter interface.
type QuoterFunc func(p QuoteParams) (*big.Int, error)

func (f QuoterFunc) QuoteUnspecified(p QuoteParams) (*big.Int, error) {
	return f(p)
}

// ConstantSumQuoter prices swaps one to one: x + y stays constant. Useful
// for like-kind pairs where the pool should never move the price.
type ConstantSumQuoter struct{}

func (ConstantSumQuoter) QuoteUnspecified(p QuoteParams) (*big.Int, error) {
	return new(big.Int).Set(p.SpecifiedAmount), nil
}
