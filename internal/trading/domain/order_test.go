package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestEligibleAt(t *testing.T) {
	tests := []struct {
		name     string
		side     OrderSide
		price    string
		last     string
		eligible bool
	}{
		{"buy above last", OrderSideBuy, "51", "50", true},
		{"buy at last", OrderSideBuy, "50", "50", true},
		{"buy below last", OrderSideBuy, "49", "50", false},
		{"sell below last", OrderSideSell, "49", "50", true},
		{"sell at last", OrderSideSell, "50", "50", true},
		{"sell above last", OrderSideSell, "51", "50", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrder("ORD1", "u1", "USDT_BTC", tt.side, dec(t, tt.price), dec(t, "1"))
			assert.Equal(t, tt.eligible, o.EligibleAt(dec(t, tt.last)))
		})
	}
}

func TestNewOrderStartsWaiting(t *testing.T) {
	o := NewOrder("ORD1", "u1", "USDT_BTC", OrderSideBuy, dec(t, "50"), dec(t, "10"))
	assert.Equal(t, OrderStatusWaiting, o.Status)
	assert.True(t, o.IsWaiting())
	assert.True(t, o.FilledAmount.IsZero())
	assert.Nil(t, o.ProcessedAt)
}

func TestTotalValue(t *testing.T) {
	o := NewOrder("ORD1", "u1", "USDT_BTC", OrderSideBuy, dec(t, "50"), dec(t, "10"))
	assert.True(t, o.TotalValue().Equal(dec(t, "500")))

	// 成交金额只由订单限价决定，快照价格不参与
	o.Price = dec(t, "49.5")
	assert.True(t, o.TotalValue().Equal(dec(t, "495")))
}
