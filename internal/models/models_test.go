package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "Exact", a: "100", b: "2", want: "200"},
		{name: "Commission", a: "3000.18518517", b: "0.015", want: "45.00277777"},
		{name: "TruncatesNotRounds", a: "0.33333333", b: "0.99999999", want: "0.33333332"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mul(decimal.RequireFromString(tt.a), decimal.RequireFromString(tt.b))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestFitsScale(t *testing.T) {
	assert.True(t, FitsScale(decimal.RequireFromString("1.12345678")))
	assert.True(t, FitsScale(decimal.RequireFromString("5.000000000")))
	assert.False(t, FitsScale(decimal.RequireFromString("1.123456789")))
}

func TestSide(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.True(t, SideBuy.Valid())
	assert.False(t, Side("BUY").Valid())
}
