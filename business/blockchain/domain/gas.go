package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.New(1, 9)

// GasPrice represents gas price information.
type GasPrice struct {
	Wei       *big.Int
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{
		Wei:       wei,
		Timestamp: time.Now(),
	}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() float64 {
	f, _ := decimal.NewFromBigInt(g.Wei, 0).Div(weiPerGwei).Float64()
	return f
}

// FeeCaps holds the EIP-1559 fee fields for a transaction. A nil BaseFee
// means the chain does not support dynamic fees and GasPrice applies.
type FeeCaps struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasPrice  *big.Int
	BaseFee   *big.Int
}

// Dynamic reports whether the caps describe a dynamic-fee transaction.
func (f FeeCaps) Dynamic() bool {
	return f.BaseFee != nil
}

// FeeCapFor computes baseFee * multiplier + tip, rounded down to whole wei.
func FeeCapFor(baseFee, tip *big.Int, multiplier decimal.Decimal) *big.Int {
	scaled := decimal.NewFromBigInt(baseFee, 0).Mul(multiplier).Floor()
	return new(big.Int).Add(scaled.BigInt(), tip)
}
