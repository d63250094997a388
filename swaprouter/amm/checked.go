package amm

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/holiman/uint256"
)

// Add returns x + y or an ArithmeticOverflow error.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, swaperr.New(swaperr.ArithmeticOverflow, "%s + %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x - y or an ArithmeticUnderflow error.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, swaperr.New(swaperr.ArithmeticUnderflow, "%s - %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x * y or an ArithmeticOverflow error.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, swaperr.New(swaperr.ArithmeticOverflow, "%s * %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// Div returns floor(x / y) or a DivisionByZero error.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, swaperr.New(swaperr.DivisionByZero, "%s / 0", x.Dec())
	}
	return new(uint256.Int).Div(x, y), nil
}

// MulDiv returns floor(x * num / den). The product must fit 256 bits.
func MulDiv(x *uint256.Int, num, den uint64) (*uint256.Int, error) {
	product, err := Mul(x, uint256.NewInt(num))
	if err != nil {
		return nil, err
	}
	return Div(product, uint256.NewInt(den))
}
