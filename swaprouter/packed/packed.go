// Package packed implements the compact word layouts used to persist pools.
//
// Token layout, bit offsets counted from the least significant bit of a 512-bit value:
//
//	[0, 160)    tokenA
//	[160, 320)  tokenB
//	[320, 352)  fee in bps
//	[352, 512)  zero
//
// The value is held as two 256-bit limbs, Lo for bits [0, 256) and Hi for bits [256, 512).
// A single 256-bit word cannot hold 352 bits, so the layout keeps the same continuous
// offsets and spills into a second limb instead of truncating tokenB and the fee.
//
// Reserves layout, one 256-bit word: reserveA mod 2^128 in the high half and reserveB
// mod 2^128 in the low half. Packing is lossy for reserves at or above 2^128.
package packed

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	addressBits = 160
	feeOffset   = 320 - 256
	halfBits    = 128
)

var (
	mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), addressBits), uint256.NewInt(1))
	mask128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), halfBits), uint256.NewInt(1))
	mask64  = uint256.NewInt(^uint64(0))
	mask32  = uint256.NewInt(uint64(^uint32(0)))
)

// MaxReserve is the largest reserve that survives PackReserves unchanged.
var MaxReserve = mask128.Clone()

// TokenWord is the packed token layout.
type TokenWord struct {
	Lo uint256.Int
	Hi uint256.Int
}

// Bytes returns the big-endian 64 byte form, Hi limb first.
func (w TokenWord) Bytes() [64]byte {
	var out [64]byte
	hi := w.Hi.Bytes32()
	lo := w.Lo.Bytes32()
	copy(out[:32], hi[:])
	copy(out[32:], lo[:])
	return out
}

// TokenWordFromBytes is the inverse of TokenWord.Bytes.
func TokenWordFromBytes(b [64]byte) TokenWord {
	var w TokenWord
	w.Hi.SetBytes32(b[:32])
	w.Lo.SetBytes32(b[32:])
	return w
}

// PackTokenData packs two token addresses and a fee into a TokenWord.
func PackTokenData(tokenA, tokenB common.Address, fee uint32) TokenWord {
	a := new(uint256.Int).SetBytes20(tokenA.Bytes())
	b := new(uint256.Int).SetBytes20(tokenB.Bytes())

	var w TokenWord
	w.Lo.Lsh(b, addressBits)
	w.Lo.Or(&w.Lo, a)

	w.Hi.Rsh(b, 256-addressBits)
	w.Hi.Or(&w.Hi, new(uint256.Int).Lsh(uint256.NewInt(uint64(fee)), feeOffset))
	return w
}

// UnpackTokenData is the exact inverse of PackTokenData.
func UnpackTokenData(w TokenWord) (tokenA, tokenB common.Address, fee uint32) {
	a := new(uint256.Int).And(&w.Lo, mask160)

	b := new(uint256.Int).Rsh(&w.Lo, addressBits)
	bHigh := new(uint256.Int).And(&w.Hi, mask64)
	bHigh.Lsh(bHigh, 256-addressBits)
	b.Or(b, bHigh)

	f := new(uint256.Int).Rsh(&w.Hi, feeOffset)
	f.And(f, mask32)

	return common.Address(a.Bytes20()), common.Address(b.Bytes20()), uint32(f.Uint64())
}

// PackReserves packs (reserveA mod 2^128) << 128 | (reserveB mod 2^128).
// Bits at or above 2^128 are dropped and cannot be recovered by UnpackReserves.
func PackReserves(reserveA, reserveB *uint256.Int) *uint256.Int {
	hi := new(uint256.Int).And(reserveA, mask128)
	hi.Lsh(hi, halfBits)
	lo := new(uint256.Int).And(reserveB, mask128)
	return hi.Or(hi, lo)
}

// UnpackReserves is the inverse of the packing step. For inputs that exceeded
// 2^128 it returns the truncated values.
func UnpackReserves(word *uint256.Int) (reserveA, reserveB *uint256.Int) {
	reserveA = new(uint256.Int).Rsh(word, halfBits)
	reserveB = new(uint256.Int).And(word, mask128)
	return reserveA, reserveB
}

// ReservesFit reports whether both reserves survive PackReserves unchanged.
func ReservesFit(reserveA, reserveB *uint256.Int) bool {
	return reserveA.BitLen() <= halfBits && reserveB.BitLen() <= halfBits
}
