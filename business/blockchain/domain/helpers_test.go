package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
