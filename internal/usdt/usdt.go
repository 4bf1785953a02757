// Package usdt provides shared USDT parsing, formatting, and spread math.
//
// USDT uses 6 decimal places. All amounts are stored as big.Int in the
// smallest unit (1 USDT = 1,000,000 units); the canonical string form
// always carries exactly 6 decimals.
package usdt

import (
	"math/big"
	"strconv"
	"strings"
)

const Decimals = 6

// BPSDenominator is the basis-point scale for spread math.
const BPSDenominator = 10000

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (1500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - More than 6 fractional digits are rejected
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if len(frac) > Decimals {
		return nil, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly 6 decimal places (e.g. "1.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// FromFloat converts a JSON-number amount to the canonical string form.
func FromFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', Decimals, 64)
}

// ToFloat converts a canonical amount string to a float64 for display.
// Invalid input yields 0.
func ToFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Cmp compares two canonical amount strings. Invalid inputs compare as
// zero.
func Cmp(a, b string) int {
	an, _ := Parse(a)
	bn, _ := Parse(b)
	if an == nil {
		an = big.NewInt(0)
	}
	if bn == nil {
		bn = big.NewInt(0)
	}
	return an.Cmp(bn)
}

// IsPositive reports whether s is a valid amount strictly greater than
// zero.
func IsPositive(s string) bool {
	n, ok := Parse(s)
	return ok && n.Sign() > 0
}

// ApplySpread splits an amount into a net payout and a platform fee at
// the given basis-point rate. The fee rounds down, so net + fee always
// equals the original amount exactly.
func ApplySpread(amount string, bps int) (net, fee string, ok bool) {
	if bps < 0 || bps > BPSDenominator {
		return "", "", false
	}
	n, valid := Parse(amount)
	if !valid || n.Sign() <= 0 {
		return "", "", false
	}

	feeN := new(big.Int).Mul(n, big.NewInt(int64(bps)))
	feeN.Div(feeN, big.NewInt(BPSDenominator))
	netN := new(big.Int).Sub(n, feeN)
	return Format(netN), Format(feeN), true
}
