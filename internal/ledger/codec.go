/*

This file implements the fixed-point wire codec for on-chain storage. Prices
and bounds are scaled x1000 and capital x100 before encoding as unsigned
64-bit integers; decode divides back by the same factors. Asset transfer
amounts use a fixed micro-unit scale (x1e6) instead.

Round-trips are exact for values within the scale's precision (three decimal
digits for prices, two for capital). Finer precision is truncated, not
rounded: this is a known precision ceiling of the wire format.

*/

package ledger

import (
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

// Codec converts between display floats and fixed-point wire integers.
type Codec struct {
	PriceScale   uint64
	CapitalScale uint64
}

// NewCodec builds a codec with the given scale factors (typically 1000/100).
func NewCodec(priceScale, capitalScale uint64) Codec {
	return Codec{PriceScale: priceScale, CapitalScale: capitalScale}
}

// microScale is the fixed scale for asset transfer amounts. Deposits and
// withdrawals travel in micro-units on the wire, independent of the
// configurable display scales above.
const microScale uint64 = 1_000_000

// EncodeMicro scales a transfer amount to micro-units for the wire.
func (c Codec) EncodeMicro(v float64) (encoded uint64, truncated bool, err error) {
	return encodeScaled(v, microScale)
}

// DecodeMicro is the inverse of EncodeMicro.
func (c Codec) DecodeMicro(raw uint64) float64 {
	return float64(raw) / float64(microScale)
}

// EncodePrice scales a price for the wire. The truncated flag reports that
// sub-scale precision was dropped; callers log it, never block on it.
func (c Codec) EncodePrice(v float64) (encoded uint64, truncated bool, err error) {
	return encodeScaled(v, c.PriceScale)
}

// DecodePrice is the inverse of EncodePrice.
func (c Codec) DecodePrice(raw uint64) float64 {
	return float64(raw) / float64(c.PriceScale)
}

// EncodeCapital scales a capital amount for the wire.
func (c Codec) EncodeCapital(v float64) (encoded uint64, truncated bool, err error) {
	return encodeScaled(v, c.CapitalScale)
}

// DecodeCapital is the inverse of EncodeCapital.
func (c Codec) DecodeCapital(raw uint64) float64 {
	return float64(raw) / float64(c.CapitalScale)
}

// encodeScaled multiplies through the scale factor with exact decimal
// arithmetic. Going through a decimal string sidesteps binary float artifacts
// like 12.345*1000 == 12344.999...; TruncateInt gives the truncation (not
// rounding) semantics of the wire format.
func encodeScaled(v float64, scale uint64) (uint64, bool, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %f", ErrNotFinite, v)
	}
	if v < 0 {
		return 0, false, ErrAmountNegative
	}
	if v == 0 {
		return 0, false, nil
	}

	dec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	scaled := dec.MulInt64(int64(scale))
	truncatedInt := scaled.TruncateInt()

	if !truncatedInt.IsUint64() {
		return 0, false, fmt.Errorf("%w: %f overflows uint64 at scale %d", ErrValidation, v, scale)
	}

	truncated := !scaled.Equal(sdkmath.LegacyNewDecFromInt(truncatedInt))
	return truncatedInt.Uint64(), truncated, nil
}
