package service

import (
	"testing"
	"time"

	"price-tracker/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NewNullDecimal(d)
}

func observation(price, unitPrice decimal.NullDecimal) *models.PriceObservation {
	return &models.PriceObservation{
		ProductID:       1,
		Source:          models.SourceBonpreu,
		PriceAmount:     price,
		UnitPriceAmount: unitPrice,
		IsCurrent:       true,
	}
}

func snapshot(price, unitPrice decimal.NullDecimal) *models.ProductSnapshot {
	return &models.ProductSnapshot{
		ProductID:       1,
		Source:          models.SourceBonpreu,
		Name:            "Llet sencera",
		PriceAmount:     price,
		UnitPriceAmount: unitPrice,
	}
}

func TestHasChangedFirstObservation(t *testing.T) {
	assert.True(t, HasChanged(nil, snapshot(num("1.95"), num("1.30"))))
}

func TestHasChanged(t *testing.T) {
	null := decimal.NullDecimal{}

	tests := []struct {
		name    string
		current *models.PriceObservation
		snap    *models.ProductSnapshot
		want    bool
	}{
		{"same prices", observation(num("1.95"), num("1.30")), snapshot(num("1.95"), num("1.30")), false},
		{"price moved", observation(num("1.95"), num("1.30")), snapshot(num("2.10"), num("1.30")), true},
		{"only unit price moved", observation(num("1.95"), num("1.30")), snapshot(num("1.95"), num("1.40")), true},
		{"price became null", observation(num("1.95"), num("1.30")), snapshot(null, num("1.30")), true},
		{"price appeared", observation(null, num("1.30")), snapshot(num("1.95"), num("1.30")), true},
		{"both null is no change", observation(null, null), snapshot(null, null), false},
		{"equal despite scale", observation(num("2.50"), null), snapshot(num("2.5"), null), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasChanged(tt.current, tt.snap))
		})
	}
}

func trendObs(price decimal.NullDecimal, at time.Time) models.PriceObservation {
	return models.PriceObservation{PriceAmount: price, ValidFrom: at}
}

func TestChangePercentage(t *testing.T) {
	base := time.Now().Add(-10 * 24 * time.Hour)

	trend := []models.PriceObservation{
		trendObs(num("2.00"), base),
		trendObs(num("2.20"), base.Add(24*time.Hour)),
		trendObs(num("2.50"), base.Add(48*time.Hour)),
	}

	pct := changePercentage(trend)
	require.NotNil(t, pct)
	assert.InDelta(t, 25.0, *pct, 0.0001)
}

func TestChangePercentageNotComputable(t *testing.T) {
	base := time.Now()
	null := decimal.NullDecimal{}

	// fewer than two observations
	assert.Nil(t, changePercentage(nil))
	assert.Nil(t, changePercentage([]models.PriceObservation{trendObs(num("2.00"), base)}))

	// missing endpoint price
	assert.Nil(t, changePercentage([]models.PriceObservation{
		trendObs(null, base),
		trendObs(num("2.00"), base.Add(time.Hour)),
	}))
	assert.Nil(t, changePercentage([]models.PriceObservation{
		trendObs(num("2.00"), base),
		trendObs(null, base.Add(time.Hour)),
	}))

	// zero baseline
	assert.Nil(t, changePercentage([]models.PriceObservation{
		trendObs(num("0"), base),
		trendObs(num("2.00"), base.Add(time.Hour)),
	}))
}

func TestDecimalsEqual(t *testing.T) {
	null := decimal.NullDecimal{}

	assert.True(t, decimalsEqual(null, null))
	assert.False(t, decimalsEqual(null, num("1.00")))
	assert.False(t, decimalsEqual(num("1.00"), null))
	assert.True(t, decimalsEqual(num("1.00"), num("1")))
	assert.False(t, decimalsEqual(num("1.00"), num("1.01")))
}
