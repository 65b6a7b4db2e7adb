package lnm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPrice(t *testing.T, v float64) Price {
	t.Helper()
	p, err := NewPrice(v)
	require.NoError(t, err)
	return p
}

func mustQuantity(t *testing.T, v uint64) Quantity {
	t.Helper()
	q, err := NewQuantity(v)
	require.NoError(t, err)
	return q
}

func TestEstimateLiquidationPrice(t *testing.T) {
	quantity := mustQuantity(t, 1_000)
	entry := mustPrice(t, 110_000)

	liq := EstimateLiquidationPrice(Buy, quantity, entry, LeverageMin)
	assert.Equal(t, mustPrice(t, 55_000), liq)

	liq = EstimateLiquidationPrice(Buy, quantity, entry, LeverageMax)
	assert.Equal(t, mustPrice(t, 108_911), liq)

	liq = EstimateLiquidationPrice(Sell, quantity, entry, LeverageMin)
	assert.Equal(t, PriceMax, liq)

	liq = EstimateLiquidationPrice(Sell, quantity, entry, LeverageMax)
	assert.Equal(t, mustPrice(t, 111_111), liq)
}

func TestPLEstimateAndPriceFromPL(t *testing.T) {
	cases := []struct {
		side       TradeSide
		start, end float64
		wantPL     int64
	}{
		{Buy, 110_000, 120_000, 75_757},
		{Buy, 110_000, 105_000, -43_291},
		{Sell, 110_000, 90_000, 202_020},
		{Sell, 110_000, 115_000, -39_526},
	}

	quantity := mustQuantity(t, 1_000)

	for _, c := range cases {
		start := mustPrice(t, c.start)
		end := mustPrice(t, c.end)

		pl := PLEstimate(c.side, quantity, start, end)
		assert.Equal(t, c.wantPL, pl)

		recovered := PriceFromPL(c.side, quantity, start, pl)
		assert.Equal(t, end, recovered)
	}
}

func TestCalculateQuantity(t *testing.T) {
	price := mustPrice(t, 100_000)

	lev1, err := NewLeverage(1.0)
	require.NoError(t, err)
	margin, err := NewMargin(1_000)
	require.NoError(t, err)
	q, err := TryCalculateQuantity(margin, price, lev1)
	require.NoError(t, err)
	assert.Equal(t, QuantityMin, q)

	lev2, _ := NewLeverage(2.0)
	margin2, _ := NewMargin(700)
	q, err = TryCalculateQuantity(margin2, price, lev2)
	require.NoError(t, err)
	assert.Equal(t, QuantityMin, q)

	lev100, _ := NewLeverage(100.0)
	marginLow, _ := NewMargin(10)
	q, err = TryCalculateQuantity(marginLow, price, lev100)
	require.NoError(t, err)
	assert.Equal(t, QuantityMin, q)

	marginHigh, _ := NewMargin(5_000_000)
	q, err = TryCalculateQuantity(marginHigh, price, lev100)
	require.NoError(t, err)
	assert.Equal(t, QuantityMax, q)

	marginTooLow, _ := NewMargin(9)
	_, err = TryCalculateQuantity(marginTooLow, price, lev100)
	assert.ErrorIs(t, err, ErrQuantityTooLow)

	marginTooHigh, _ := NewMargin(5_001_000)
	_, err = TryCalculateQuantity(marginTooHigh, price, lev100)
	assert.ErrorIs(t, err, ErrQuantityTooHigh)
}

func TestMarginQuantityRoundTripWithinOneSat(t *testing.T) {
	price := mustPrice(t, 97_500)
	lev, _ := NewLeverage(25)

	for _, qv := range []uint64{1, 100, 5_000, 250_000, 500_000} {
		q := mustQuantity(t, qv)
		margin, err := CalculateMargin(q, price, lev)
		require.NoError(t, err)

		roundTripped, err := TryCalculateQuantity(margin, price, lev)
		require.NoError(t, err)

		diff := int64(roundTripped.Uint64()) - int64(q.Uint64())
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int64(1))
	}
}
