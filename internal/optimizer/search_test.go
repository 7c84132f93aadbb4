package optimizer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// parabola peaks at peak with value 0.
func parabola(peak int64) Objective {
	return func(x *big.Int) (*big.Int, error) {
		d := new(big.Int).Sub(x, big.NewInt(peak))
		return d.Neg(d.Mul(d, d)), nil
	}
}

func TestTernarySearchMax_FindsPeak(t *testing.T) {
	testCases := []struct {
		name   string
		lo, hi int64
		peak   int64
		want   int64
	}{
		{name: "interior peak", lo: 0, hi: 1_000_000, peak: 424_242, want: 424_242},
		{name: "peak at lower bound", lo: 10, hi: 10_000, peak: 10, want: 10},
		{name: "peak past upper bound", lo: 10, hi: 10_000, peak: 50_000, want: 10_000},
		{name: "single point", lo: 7, hi: 7, peak: 100, want: 7},
		{name: "tiny interval", lo: 1, hi: 3, peak: 2, want: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, v, err := TernarySearchMax(big.NewInt(tc.lo), big.NewInt(tc.hi), 0, parabola(tc.peak))
			require.NoError(t, err)
			assert.Equal(t, tc.want, x.Int64())

			want, _ := parabola(tc.peak)(big.NewInt(tc.want))
			assert.Equal(t, 0, v.Cmp(want))
		})
	}
}

func TestTernarySearchMax_PlateauKeepsFirstMaximum(t *testing.T) {
	flat := func(x *big.Int) (*big.Int, error) { return big.NewInt(5), nil }

	x, _, err := TernarySearchMax(big.NewInt(100), big.NewInt(102), 80, flat)
	require.NoError(t, err)
	assert.Equal(t, int64(100), x.Int64())
}

func TestTernarySearchMax_InvalidInput(t *testing.T) {
	f := parabola(5)

	_, _, err := TernarySearchMax(big.NewInt(10), big.NewInt(1), 80, f)
	assert.ErrorIs(t, err, domain.ErrSearchFailed)

	_, _, err = TernarySearchMax(big.NewInt(-1), big.NewInt(1), 80, f)
	assert.ErrorIs(t, err, domain.ErrSearchFailed)

	_, _, err = TernarySearchMax(nil, big.NewInt(1), 80, f)
	assert.ErrorIs(t, err, domain.ErrSearchFailed)

	_, _, err = TernarySearchMax(big.NewInt(1), big.NewInt(10), -3, f)
	assert.ErrorIs(t, err, domain.ErrSearchFailed)
}

func TestTernarySearchMax_BudgetTooSmall(t *testing.T) {
	_, _, err := TernarySearchMax(big.NewInt(0), big.NewInt(1_000_000_000), 1, parabola(5))
	assert.ErrorIs(t, err, domain.ErrSearchFailed)
}

func TestTernarySearchMax_ScanWidthCap(t *testing.T) {
	// One cut leaves [0, 65535]: narrow enough to scan.
	x, _, err := TernarySearchMax(big.NewInt(0), big.NewInt(98_304), 1, parabola(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), x.Int64())

	// One cut leaves [0, 65539]: too wide.
	_, _, err = TernarySearchMax(big.NewInt(0), big.NewInt(98_310), 1, parabola(5))
	assert.ErrorIs(t, err, domain.ErrSearchFailed)
}

func TestTernarySearchMax_PropagatesObjectiveError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(x *big.Int) (*big.Int, error) { return nil, boom }

	_, _, err := TernarySearchMax(big.NewInt(0), big.NewInt(1_000), 80, failing)
	assert.ErrorIs(t, err, boom)
}

func TestTernarySearchMax_DoesNotModifyBounds(t *testing.T) {
	lo, hi := big.NewInt(0), big.NewInt(1_000)
	_, _, err := TernarySearchMax(lo, hi, 80, parabola(400))
	require.NoError(t, err)
	assert.Equal(t, int64(0), lo.Int64())
	assert.Equal(t, int64(1_000), hi.Int64())
}
