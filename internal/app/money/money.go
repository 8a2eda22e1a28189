// Package money converts between human-denominated chain amounts and the
// integer smallest unit (nanoton, lamport) that transfers are compared in.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Both TON (nanoton) and Solana (lamport) use nine decimals.
const (
	TonDecimals    int32 = 9
	SolanaDecimals int32 = 9
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	amountRe  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	integerRe = regexp.MustCompile(`^\d+$`)
)

// ToSmallestUnit turns a decimal amount like "0.02" into an integer string
// in the smallest unit. Fraction digits past the exponent are truncated.
func ToSmallestUnit(amount string, decimals int32) (string, error) {
	s := strings.TrimSpace(amount)
	if !amountRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return d.Shift(decimals).Truncate(0).BigInt().String(), nil
}

// FromSmallestUnit is the inverse of ToSmallestUnit, trailing zeros trimmed.
func FromSmallestUnit(units string, decimals int32) (string, error) {
	n, err := ParseUnits(units)
	if err != nil {
		return "", err
	}
	return decimal.NewFromBigInt(n, -decimals).String(), nil
}

// ParseUnits parses a non-negative integer string of arbitrary size.
func ParseUnits(units string) (*big.Int, error) {
	s := strings.TrimSpace(units)
	if !integerRe.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, units)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, units)
	}
	return n, nil
}

// IsUnits reports whether s is a canonical integer amount string.
func IsUnits(s string) bool {
	return integerRe.MatchString(s)
}

// BuildMemo is the correlation key written into the transfer comment.
func BuildMemo(orderID int64) string {
	return "order-" + strconv.FormatInt(orderID, 10)
}
