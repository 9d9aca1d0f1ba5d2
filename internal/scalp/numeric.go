package scalp

import (
	"errors"
	"fmt"
	"math"
)

// Instrument tick precision. All prices sent to the venue are rounded to
// one decimal place, sizes to three.
const (
	priceDecimals = 1
	sizeDecimals  = 3
)

// ErrInvalidPrice marks a malformed tick. Callers drop the tick and keep
// going; it is never fatal.
var ErrInvalidPrice = errors.New("invalid price")

// RoundTo rounds v to the given number of decimal places, half away from zero.
func RoundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// RoundPrice rounds v to the instrument tick precision.
func RoundPrice(v float64) float64 {
	return RoundTo(v, priceDecimals)
}

// RoundSize rounds v to the venue's size precision.
func RoundSize(v float64) float64 {
	return RoundTo(v, sizeDecimals)
}

// CheckPrice validates a raw tick. NaN, infinite and non-positive values
// are rejected with ErrInvalidPrice.
func CheckPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return nil
}
