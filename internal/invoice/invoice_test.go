package invoice

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		inv, err := New(Rials(10000), Details{DetailName: "Ali"})
		require.NoError(t, err)
		assert.NotEmpty(t, inv.UUID())
		assert.Equal(t, "Ali", inv.Detail(DetailName))
		assert.False(t, inv.HasTransactionID())
	})

	t.Run("UniqueUUID", func(t *testing.T) {
		a, _ := New(Rials(1), nil)
		b, _ := New(Rials(1), nil)
		assert.NotEqual(t, a.UUID(), b.UUID())
	})

	t.Run("ZeroAmount", func(t *testing.T) {
		_, err := New(Rials(0), nil)
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})

	t.Run("DetailsAreCopied", func(t *testing.T) {
		d := Details{DetailName: "Ali"}
		inv, _ := New(Rials(1), d)
		d[DetailName] = "Reza"

		got := inv.Details()
		got[DetailName] = "Sara"

		assert.Equal(t, "Ali", inv.Detail(DetailName))
	})
}

func TestSetTransactionID(t *testing.T) {
	inv, _ := New(Rials(1000), nil)

	assert.ErrorIs(t, inv.SetTransactionID(""), ErrEmptyTransactionID)

	require.NoError(t, inv.SetTransactionID("TX1"))
	assert.Equal(t, "TX1", inv.TransactionID())

	// same id again is harmless
	assert.NoError(t, inv.SetTransactionID("TX1"))

	assert.ErrorIs(t, inv.SetTransactionID("TX2"), ErrTransactionIDSet)
	assert.Equal(t, "TX1", inv.TransactionID())
}

func TestRestore(t *testing.T) {
	inv, err := Restore("abc", Rials(10000), Details{DetailMobile: "0912"}, "TX1")
	require.NoError(t, err)
	assert.Equal(t, "abc", inv.UUID())
	assert.Equal(t, "TX1", inv.TransactionID())
	assert.Equal(t, "0912", inv.Detail(DetailMobile))

	_, err = Restore("", Rials(1), nil, "")
	assert.ErrorIs(t, err, ErrMissingUUID)
}

func TestDetails_First(t *testing.T) {
	d := Details{DetailPhone: "021", DetailMobile: ""}
	assert.Equal(t, "021", d.First(DetailMobile, DetailPhone))
	assert.Equal(t, "", d.First("unknown"))

	var empty Details
	assert.Equal(t, "", empty.Get(DetailName))
}

func TestAmount(t *testing.T) {
	t.Run("TomanToRial", func(t *testing.T) {
		v, err := Tomans(1500).Minor(UnitRial)
		require.NoError(t, err)
		assert.Equal(t, int64(15000), v)
	})

	t.Run("RialToTomanFractional", func(t *testing.T) {
		_, err := Rials(15).Minor(UnitToman)
		assert.ErrorIs(t, err, ErrFractionalAmount)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		a, err := NewAmount(decimal.NewFromInt(1_000_000_000_000_000_000), UnitToman)
		require.NoError(t, err)
		_, err = a.Minor(UnitRial)
		assert.ErrorIs(t, err, ErrAmountOutOfRange)

		a, err = NewAmount(decimal.RequireFromString("100000000000000000000"), UnitRial)
		require.NoError(t, err)
		_, err = a.Minor(UnitRial)
		assert.ErrorIs(t, err, ErrAmountOutOfRange)

		v, err := Rials(math.MaxInt64).Minor(UnitRial)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), v)
	})

	t.Run("UnknownUnit", func(t *testing.T) {
		_, err := NewAmount(decimal.NewFromInt(1), Unit("USD"))
		assert.ErrorIs(t, err, ErrUnknownUnit)

		_, err = Rials(10).In(Unit("USD"))
		assert.ErrorIs(t, err, ErrUnknownUnit)
	})

	t.Run("Negative", func(t *testing.T) {
		_, err := NewAmount(decimal.NewFromInt(-5), UnitRial)
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	})

	t.Run("ParseUnit", func(t *testing.T) {
		u, err := ParseUnit("")
		require.NoError(t, err)
		assert.Equal(t, UnitRial, u)

		u, err = ParseUnit("IRT")
		require.NoError(t, err)
		assert.Equal(t, UnitToman, u)

		_, err = ParseUnit("EUR")
		assert.Error(t, err)
	})

	assert.Equal(t, "10000 IRR", Rials(10000).String())
}
