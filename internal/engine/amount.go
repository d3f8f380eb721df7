package engine

import (
	"math/big"
	"sync"
)

// Fixed-point scales used throughout the engine. Price is e6; rates are
// expressed either in bps (denominator 10_000) or e2bps (denominator
// 1_000_000, i.e. basis-points-of-basis-points).
const (
	PriceScale  = 1_000_000
	BpsDenom    = 10_000
	E2BpsDenom  = 1_000_000
	MaxOraclePrice = int64(1) << 60
)

// bigPool reuses the sync.Pool-backed big.Int pattern from
// internal/math/fixedpoint.go, generalized so every widening multiply in
// the engine (margin, funding, fees, fixed-point ratios) goes through the
// same pooled path instead of allocating a fresh big.Int per call.
var bigPool = sync.Pool{
	New: func() any { return new(big.Int) },
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// mulDiv computes a*b/d using a 128-bit-safe big.Int intermediate, rounding
// toward zero (Go's big.Int.Quo truncates toward zero, matching mul_bps's
// required rounding direction).
func mulDiv(a, b, d int64) int64 {
	x := getBig()
	y := getBig()
	x.SetInt64(a)
	y.SetInt64(b)
	x.Mul(x, y)
	x.Quo(x, big.NewInt(d))
	r := x.Int64()
	putBig(x)
	putBig(y)
	return r
}

// MulBps computes x * bps / 10_000, rounding toward zero.
func MulBps(x, bps int64) int64 {
	return mulDiv(x, bps, BpsDenom)
}

// MulE2Bps computes x * rate / 1_000_000, rounding toward zero.
func MulE2Bps(x, rate int64) int64 {
	return mulDiv(x, rate, E2BpsDenom)
}

// Notional computes |size| * price / 1e6 using the widening path.
func Notional(size, priceE6 int64) int64 {
	abs := size
	if abs < 0 {
		abs = -abs
	}
	return mulDiv(abs, priceE6, PriceScale)
}

// CheckedAdd returns a+b, or ErrCheckedMath if it would overflow int64.
// Checked sites are used wherever an overflow indicates a malformed
// instruction rather than an internal accounting slip.
func CheckedAdd(a, b int64) (int64, error) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, ErrCheckedMath
	}
	return r, nil
}

func CheckedSub(a, b int64) (int64, error) {
	r := a - b
	if (b < 0 && r < a) || (b > 0 && r > a) {
		return 0, ErrCheckedMath
	}
	return r, nil
}

func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a {
		return 0, ErrCheckedMath
	}
	return r, nil
}

// SatAddU64 (with SatSubU64 and SatSubI64 below) is the saturating
// counterpart used at internal-accounting sites
// where a clamp, not a failed instruction, is the correct
// response to a would-be overflow or underflow — e.g. decrementing
// total_open_interest or loss_accum during recovery, where the quantity is
// bounded below by zero by construction and any breach is a prior bug that
// must not be allowed to corrupt the slab further.
func SatAddU64(a, b uint64) uint64 {
	r := a + b
	if r < a {
		return ^uint64(0)
	}
	return r
}

func SatSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SatSubI64(a, b int64) int64 {
	r, err := CheckedSub(a, b)
	if err != nil {
		if b > 0 {
			return -(1 << 62)
		}
		return 1 << 62
	}
	return r
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func absI64(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}
