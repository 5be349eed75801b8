package tax_test

import (
	"errors"
	"testing"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute_IVAGeneral(t *testing.T) {
	r, err := tax.Compute(d("1000.00"), d("21"), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "210.00", r.TaxAmount.StringFixed(2))
	assert.Equal(t, "0.00", r.WithholdingAmount.StringFixed(2))
	assert.Equal(t, "1210.00", r.TotalAmount.StringFixed(2))
}

func TestCompute_ConRetencion(t *testing.T) {
	r, err := tax.Compute(d("1000.00"), d("21"), d("15"))
	require.NoError(t, err)
	assert.Equal(t, "150.00", r.WithholdingAmount.StringFixed(2))
	assert.Equal(t, "1060.00", r.TotalAmount.StringFixed(2))
}

func TestCompute_RedondeoMitadArriba(t *testing.T) {
	cases := []struct {
		base, rate, tax, total string
	}{
		{"0.05", "10", "0.01", "0.06"},   // 0.005 -> 0.01
		{"10.01", "21", "2.10", "12.11"}, // 2.1021 -> 2.10
		{"33.33", "21", "7.00", "40.33"}, // 6.9993 -> 7.00
		{"0.10", "4", "0.00", "0.10"},    // 0.004 -> 0.00
		{"99.95", "10", "10.00", "109.95"},
	}
	for _, tc := range cases {
		t.Run(tc.base+"@"+tc.rate, func(t *testing.T) {
			r, err := tax.Compute(d(tc.base), d(tc.rate), decimal.Zero)
			require.NoError(t, err)
			assert.Equal(t, tc.tax, r.TaxAmount.StringFixed(2))
			assert.Equal(t, tc.total, r.TotalAmount.StringFixed(2))
		})
	}
}

func TestCompute_Deterministico(t *testing.T) {
	a, err := tax.Compute(d("1234.56"), d("21"), d("7"))
	require.NoError(t, err)
	b, err := tax.Compute(d("1234.56"), d("21"), d("7"))
	require.NoError(t, err)
	assert.True(t, a.TotalAmount.Equal(b.TotalAmount))
	assert.True(t, a.TaxAmount.Equal(b.TaxAmount))
}

func TestCompute_RechazaEntradasInvalidas(t *testing.T) {
	cases := map[string][3]string{
		"base negativa":      {"-1", "21", "0"},
		"tipo negativo":      {"100", "-1", "0"},
		"tipo mayor que 100": {"100", "100.01", "0"},
		"retención inválida": {"100", "21", "101"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tax.Compute(d(in[0]), d(in[1]), d(in[2]))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func TestComputeSigned_Abono(t *testing.T) {
	r, err := tax.ComputeSigned(d("-1000.00"), d("21"), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "-210.00", r.TaxAmount.StringFixed(2))
	assert.Equal(t, "-1210.00", r.TotalAmount.StringFixed(2))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, tax.WithinTolerance(d("10.00"), d("10.01"), tax.Tolerance))
	assert.False(t, tax.WithinTolerance(d("10.00"), d("10.02"), tax.Tolerance))
}
