package token

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// IncompatibleTokenError reports an arithmetic or comparison operation across
// two different tokens. It is a programmer error and is never recovered into
// a silent result.
type IncompatibleTokenError struct {
	A, B Info
}

func (e *IncompatibleTokenError) Error() string {
	return fmt.Sprintf("token: incompatible tokens %s and %s", e.A, e.B)
}

// ErrIncompatibleToken matches any IncompatibleTokenError via errors.Is.
var ErrIncompatibleToken = &IncompatibleTokenError{}

// Is lets errors.Is(err, ErrIncompatibleToken) match regardless of the
// offending token pair.
func (e *IncompatibleTokenError) Is(target error) bool {
	_, ok := target.(*IncompatibleTokenError)
	return ok
}

// Amount is an exact-precision quantity of a specific token. The zero value
// is not usable; construct through Info.Amount or Info.FromBaseUnits.
type Amount struct {
	TokenInfo Info            `json:"token_info"`
	Value     decimal.Decimal `json:"value"`
}

func (a Amount) checkSameToken(b Amount) error {
	if !a.TokenInfo.Equal(b.TokenInfo) {
		return &IncompatibleTokenError{A: a.TokenInfo, B: b.TokenInfo}
	}
	return nil
}

// Add returns a + b. Fails across different tokens.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.checkSameToken(b); err != nil {
		return Amount{}, err
	}
	return Amount{TokenInfo: a.TokenInfo, Value: a.Value.Add(b.Value)}, nil
}

// Sub returns a - b. Fails across different tokens.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.checkSameToken(b); err != nil {
		return Amount{}, err
	}
	return Amount{TokenInfo: a.TokenInfo, Value: a.Value.Sub(b.Value)}, nil
}

// Cmp compares two amounts of the same token: -1 if a < b, 0 if equal, 1 if
// a > b. Fails across different tokens.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.checkSameToken(b); err != nil {
		return 0, err
	}
	return a.Value.Cmp(b.Value), nil
}

// Equal reports value equality for the same token. Fails across different
// tokens.
func (a Amount) Equal(b Amount) (bool, error) {
	cmp, err := a.Cmp(b)
	if err != nil {
		return false, err
	}
	return cmp == 0, nil
}

// LessThan reports a < b for the same token.
func (a Amount) LessThan(b Amount) (bool, error) {
	cmp, err := a.Cmp(b)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

// IsZero reports whether the value is exactly zero.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

// IsPositive reports whether the value is greater than zero.
func (a Amount) IsPositive() bool {
	return a.Value.IsPositive()
}

// ToBaseUnits converts to the token's integer base units, truncating toward
// zero.
func (a Amount) ToBaseUnits() *big.Int {
	return a.TokenInfo.ToBaseUnits(a.Value)
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.String(), a.TokenInfo.Symbol)
}
