package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dErrors "entrypass/pkg/domain-errors"
)

// Amount is money in minor units (centavos).
type Amount int64

// Pesos builds an Amount from whole currency units.
func Pesos(units int64) Amount {
	return Amount(units * 100)
}

// String renders the amount with two decimals, e.g. 150.00.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Times multiplies by a group size, guarding against overflow.
func (a Amount) Times(n int) (Amount, error) {
	if n < 0 || a < 0 {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "amount and multiplier must be non-negative")
	}
	if n != 0 && int64(a) > math.MaxInt64/int64(n) {
		return 0, dErrors.New(dErrors.CodeValidation, "total fee overflows")
	}
	return a * Amount(n), nil
}

// ParseAmount accepts "150", "150.5" or "150.50".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !digits(whole) || (hasFrac && (len(frac) > 2 || !digits(frac))) {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must look like 150 or 150.00")
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100-1 {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a non-negative number")
	}
	cents := int64(0)
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, dErrors.New(dErrors.CodeValidation, "amount must be a non-negative number")
		}
	}
	return Amount(units*100 + cents), nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalText renders the amount as a decimal string in JSON.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	v, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
