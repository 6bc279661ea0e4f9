package decoder

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// weiDecimals is the number of decimals of the native currency.
const weiDecimals = 18

// FormatEther renders a wei amount in ether with exactly precision fractional digits.
// Digits beyond precision are truncated, not rounded.
func FormatEther(wei *uint256.Int, precision int) string {
	if precision < 0 {
		precision = DefaultPrecision
	}
	if wei == nil {
		return decimal.Zero.StringFixed(int32(precision))
	}
	d := decimal.NewFromBigInt(wei.ToBig(), -weiDecimals)
	return d.Truncate(int32(precision)).StringFixed(int32(precision))
}

func errBadLength(got, want int) error {
	return fmt.Errorf("want %d bytes, got %d", want, got)
}
