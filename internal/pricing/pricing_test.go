package pricing

import (
	"testing"

	"bazar_back_end/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FreeShippingThreshold: decimal.NewFromInt(1500),
		DefaultShippingCost:   decimal.NewFromInt(60),
	}
}

func item(id string, price int64, qty int) models.CartItem {
	return models.CartItem{ProductID: id, Name: "item " + id, Price: decimal.NewFromInt(price), Quantity: qty}
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name         string
		items        []models.CartItem
		wantSubtotal int64
		wantShipping int64
		wantTotal    int64
	}{
		{"free shipping above threshold", []models.CartItem{item("a", 900, 2)}, 1800, 0, 1800},
		{"flat shipping below threshold", []models.CartItem{item("a", 450, 2)}, 900, 60, 960},
		{"threshold is inclusive", []models.CartItem{item("a", 1000, 1), item("b", 250, 2)}, 1500, 0, 1500},
		{"just below threshold", []models.CartItem{item("a", 1499, 1)}, 1499, 60, 1559},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := testConfig().Snapshot(tt.items)
			require.NoError(t, err)
			assert.True(t, q.Subtotal.Equal(decimal.NewFromInt(tt.wantSubtotal)), "subtotal %s", q.Subtotal)
			assert.True(t, q.ShippingCost.Equal(decimal.NewFromInt(tt.wantShipping)), "shipping %s", q.ShippingCost)
			assert.True(t, q.Total.Equal(decimal.NewFromInt(tt.wantTotal)), "total %s", q.Total)
			assert.True(t, q.Discount.IsZero())
			assert.Len(t, q.Lines, len(tt.items))
		})
	}
}

func TestSnapshotRejectsBadCarts(t *testing.T) {
	_, err := testConfig().Snapshot(nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = testConfig().Snapshot([]models.CartItem{item("a", 100, 0)})
	assert.ErrorIs(t, err, ErrInvalidLine)

	_, err = testConfig().Snapshot([]models.CartItem{item("a", -1, 1)})
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestSnapshotKeepsFractionalPricesExact(t *testing.T) {
	items := []models.CartItem{
		{ProductID: "a", Name: "a", Price: decimal.RequireFromString("0.10"), Quantity: 3},
		{ProductID: "b", Name: "b", Price: decimal.RequireFromString("0.20"), Quantity: 1},
	}
	q, err := testConfig().Snapshot(items)
	require.NoError(t, err)
	assert.Equal(t, "0.5", q.Subtotal.String())
	assert.Equal(t, int64(6050), ToMinorUnits(q.Total))
}

func TestQuoteMatches(t *testing.T) {
	q, err := testConfig().Snapshot([]models.CartItem{item("a", 450, 2)})
	require.NoError(t, err)

	assert.NoError(t, q.Matches(decimal.NewFromInt(900), decimal.NewFromInt(60), decimal.NewFromInt(960)))
	assert.ErrorIs(t, q.Matches(decimal.NewFromInt(900), decimal.Zero, decimal.NewFromInt(900)), ErrTotalsMismatch)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(96000), ToMinorUnits(decimal.NewFromInt(960)))
	assert.Equal(t, int64(1235), ToMinorUnits(decimal.RequireFromString("12.345")))
	assert.True(t, FromMinorUnits(96050).Equal(decimal.RequireFromString("960.50")))
}

func TestCalculation(t *testing.T) {
	calc := testConfig().Calculation(decimal.NewFromInt(1200))
	assert.False(t, calc.IsFree)
	assert.True(t, calc.Remaining.Equal(decimal.NewFromInt(300)))

	calc = testConfig().Calculation(decimal.NewFromInt(2000))
	assert.True(t, calc.IsFree)
	assert.True(t, calc.Remaining.IsZero())
}
