package invoice

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Unit is the currency unit an amount is expressed in. Providers do not agree
// on a unit, so every amount carries its own.
type Unit string

const (
	UnitRial  Unit = "IRR"
	UnitToman Unit = "IRT"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrUnknownUnit       = errors.New("unknown amount unit")
	ErrFractionalAmount  = errors.New("amount is not a whole number in target unit")
	ErrAmountOutOfRange  = errors.New("amount is too large")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

var rialsPer = map[Unit]decimal.Decimal{
	UnitRial:  decimal.NewFromInt(1),
	UnitToman: decimal.NewFromInt(10),
}

type Amount struct {
	value decimal.Decimal
	unit  Unit
}

func NewAmount(value decimal.Decimal, unit Unit) (Amount, error) {
	if _, ok := rialsPer[unit]; !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	if !value.IsPositive() {
		return Amount{}, ErrNonPositiveAmount
	}
	return Amount{value: value, unit: unit}, nil
}

// Rials is a shorthand for whole rial amounts. Non-positive values yield the
// zero Amount, which New rejects.
func Rials(v int64) Amount {
	a, _ := NewAmount(decimal.NewFromInt(v), UnitRial)
	return a
}

func Tomans(v int64) Amount {
	a, _ := NewAmount(decimal.NewFromInt(v), UnitToman)
	return a
}

func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitRial, UnitToman:
		return Unit(s), nil
	case "":
		return UnitRial, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

func (a Amount) Value() decimal.Decimal { return a.value }
func (a Amount) Unit() Unit              { return a.unit }
func (a Amount) IsZero() bool            { return a.unit == "" }

// In converts the amount to the given unit.
func (a Amount) In(unit Unit) (decimal.Decimal, error) {
	to, ok := rialsPer[unit]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	from, ok := rialsPer[a.unit]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUnit, a.unit)
	}
	return a.value.Mul(from).Div(to), nil
}

// Minor returns the amount as an integer in the given unit, as providers
// expect on the wire.
func (a Amount) Minor(unit Unit) (int64, error) {
	v, err := a.In(unit)
	if err != nil {
		return 0, err
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrFractionalAmount, v.String(), unit)
	}
	if v.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountOutOfRange, v.String(), unit)
	}
	return v.IntPart(), nil
}

func (a Amount) String() string {
	return a.value.String() + " " + string(a.unit)
}
