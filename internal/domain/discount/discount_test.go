package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestFor(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		value  decimal.Decimal
		amount decimal.Decimal
		want   decimal.Decimal
	}{
		{name: "percentage 10% of 200", kind: KindPercentage, value: d("10"), amount: d("200.00"), want: d("20")},
		{name: "percentage 0%", kind: KindPercentage, value: d("0"), amount: d("99.99"), want: d("0")},
		{name: "percentage 100% equals amount", kind: KindPercentage, value: d("100"), amount: d("42.50"), want: d("42.50")},
		{name: "percentage keeps cents exact", kind: KindPercentage, value: d("15"), amount: d("19.99"), want: d("2.9985")},
		{name: "percentage over 100 passes through", kind: KindPercentage, value: d("150"), amount: d("10"), want: d("15")},
		{name: "fixed below amount", kind: KindFixed, value: d("15"), amount: d("200"), want: d("15")},
		{name: "fixed clamped to amount", kind: KindFixed, value: d("75"), amount: d("50.00"), want: d("50")},
		{name: "fixed equal to amount", kind: KindFixed, value: d("50"), amount: d("50"), want: d("50")},
		{name: "unknown kind is inert", kind: Kind("BUY_X_GET_Y"), value: d("10"), amount: d("100"), want: d("0")},
		{name: "empty kind is inert", kind: Kind(""), value: d("10"), amount: d("100"), want: d("0")},
		{name: "negative amount never yields negative discount", kind: KindFixed, value: d("10"), amount: d("-5"), want: d("0")},
		{name: "negative percentage floored", kind: KindPercentage, value: d("-10"), amount: d("100"), want: d("0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := For(tt.kind, tt.value, tt.amount)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestFor_FixedNeverExceedsAmount(t *testing.T) {
	amounts := []string{"0", "0.01", "1", "49.99", "50", "1000"}
	values := []string{"0", "0.01", "25", "50", "75", "100000"}

	for _, a := range amounts {
		for _, v := range values {
			got := For(KindFixed, d(v), d(a))
			assert.True(t, got.LessThanOrEqual(d(a)), "fixed %s against %s gave %s", v, a, got)
		}
	}
}

func TestFor_PercentageMatchesFormula(t *testing.T) {
	amounts := []string{"0", "0.01", "3.33", "100", "12345.67"}
	for _, a := range amounts {
		for p := int64(0); p <= 100; p += 5 {
			pct := decimal.NewFromInt(p)
			want := d(a).Mul(pct).Div(decimal.NewFromInt(100))
			got := For(KindPercentage, pct, d(a))
			assert.True(t, want.Round(2).Equal(got.Round(2)), "%d%% of %s: want %s got %s", p, a, want, got)
		}
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindPercentage, ParseKind("percentage"))
	assert.Equal(t, KindFixed, ParseKind(" Fixed "))
	assert.Equal(t, Kind("BOGO"), ParseKind("bogo"))
	assert.True(t, ParseKind("PERCENTAGE").Known())
	assert.False(t, ParseKind("bogo").Known())
}
