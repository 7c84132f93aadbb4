package amm

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

var (
	oneMillion  = big.NewInt(domain.MaxFeePpm)
	tenThousand = big.NewInt(domain.MaxFeeBps)
)

// ValidateFeePpm rejects fees outside [0, 1_000_000].
func ValidateFeePpm(feePpm int64) error {
	if feePpm < 0 || feePpm > domain.MaxFeePpm {
		return fmt.Errorf("%w: fee must be in [0, %d] ppm, got %d", domain.ErrInvalidParameter, domain.MaxFeePpm, feePpm)
	}
	return nil
}

// ValidateFeeBps rejects fees outside [0, 10_000].
func ValidateFeeBps(feeBps int64) error {
	if feeBps < 0 || feeBps > domain.MaxFeeBps {
		return fmt.Errorf("%w: fee must be in [0, %d] bps, got %d", domain.ErrInvalidParameter, domain.MaxFeeBps, feeBps)
	}
	return nil
}

// BpsToPpm converts a validated bps fee to ppm.
func BpsToPpm(feeBps int64) (int64, error) {
	if err := ValidateFeeBps(feeBps); err != nil {
		return 0, err
	}
	return feeBps * 100, nil
}

// ApplyFeePpm returns amountIn · (1e6 − feePpm) / 1e6, truncated.
func ApplyFeePpm(amountIn *big.Int, feePpm int64) (*big.Int, error) {
	if err := validateAmountIn(amountIn); err != nil {
		return nil, err
	}
	if err := ValidateFeePpm(feePpm); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(domain.MaxFeePpm-feePpm))
	return out.Quo(out, oneMillion), nil
}

// ApplyFeeBps returns amountIn · (1e4 − feeBps) / 1e4, truncated.
func ApplyFeeBps(amountIn *big.Int, feeBps int64) (*big.Int, error) {
	if err := validateAmountIn(amountIn); err != nil {
		return nil, err
	}
	if err := ValidateFeeBps(feeBps); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(domain.MaxFeeBps-feeBps))
	return out.Quo(out, tenThousand), nil
}

func validateAmountIn(amountIn *big.Int) error {
	if amountIn == nil || amountIn.Sign() < 0 {
		return fmt.Errorf("%w: amountIn must be >= 0, got %s", domain.ErrInvalidParameter, amountString(amountIn))
	}
	return nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
