package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/packed"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
)

/*
Pool record layout, all integers big-endian:

	[0, 8)      id
	[8, 28)     pool address
	[28, 92)    packed token word (tokenA, tokenB, fee)
	[92, 124)   packed reserves
	[124, 132)  chain id
	[132, 133)  pool type
	[133, 134)  flags, bit 0 verified, bit 1 active
	[134, 142)  created at
	[142, 150)  last updated
	[150, 158)  refreshed at block
	[158, 190)  blake3 checksum of [0, 158)
*/
const (
	recordBodyLen = 158
	checksumLen   = 32
	recordLen     = recordBodyLen + checksumLen
)

const (
	flagVerified byte = 1 << iota
	flagActive
)

// EncodePool serializes a pool. Reserves must fit the packed reserves word.
func EncodePool(p *registry.Pool) ([]byte, error) {
	if !packed.ReservesFit(p.ReserveA, p.ReserveB) {
		return nil, swaperr.New(swaperr.ReserveExceedsPackedWidth,
			"pool %d reserves %s/%s exceed %d bits", p.ID, p.ReserveA.Dec(), p.ReserveB.Dec(), 128)
	}

	buf := make([]byte, recordLen)
	binary.BigEndian.PutUint64(buf[0:8], p.ID)
	copy(buf[8:28], p.PoolAddress.Bytes())
	tokens := packed.PackTokenData(p.TokenA, p.TokenB, p.FeeBps).Bytes()
	copy(buf[28:92], tokens[:])
	reserves := packed.PackReserves(p.ReserveA, p.ReserveB).Bytes32()
	copy(buf[92:124], reserves[:])
	binary.BigEndian.PutUint64(buf[124:132], p.ChainID)
	buf[132] = byte(p.PoolType)
	var flags byte
	if p.IsVerified {
		flags |= flagVerified
	}
	if p.IsActive {
		flags |= flagActive
	}
	buf[133] = flags
	binary.BigEndian.PutUint64(buf[134:142], p.CreatedAt)
	binary.BigEndian.PutUint64(buf[142:150], p.LastUpdated)
	binary.BigEndian.PutUint64(buf[150:158], p.RefreshedAtBlock)

	sum := blake3.Sum256(buf[:recordBodyLen])
	copy(buf[recordBodyLen:], sum[:])
	return buf, nil
}

// DecodePool is the inverse of EncodePool.
func DecodePool(buf []byte) (*registry.Pool, error) {
	if len(buf) != recordLen {
		return nil, fmt.Errorf("pool record has %d bytes, want %d", len(buf), recordLen)
	}
	sum := blake3.Sum256(buf[:recordBodyLen])
	if !bytes.Equal(sum[:], buf[recordBodyLen:]) {
		return nil, fmt.Errorf("pool record checksum mismatch")
	}

	var tokenBytes [64]byte
	copy(tokenBytes[:], buf[28:92])
	tokenA, tokenB, fee := packed.UnpackTokenData(packed.TokenWordFromBytes(tokenBytes))

	var word [32]byte
	copy(word[:], buf[92:124])
	reserveA, reserveB := packed.UnpackReserves(new(uint256.Int).SetBytes32(word[:]))

	flags := buf[133]
	return &registry.Pool{
		ID:               binary.BigEndian.Uint64(buf[0:8]),
		PoolAddress:      common.BytesToAddress(buf[8:28]),
		TokenA:           tokenA,
		TokenB:           tokenB,
		ReserveA:         reserveA,
		ReserveB:         reserveB,
		FeeBps:           fee,
		ChainID:          binary.BigEndian.Uint64(buf[124:132]),
		PoolType:         registry.PoolType(buf[132]),
		IsVerified:       flags&flagVerified != 0,
		IsActive:         flags&flagActive != 0,
		CreatedAt:        binary.BigEndian.Uint64(buf[134:142]),
		LastUpdated:      binary.BigEndian.Uint64(buf[142:150]),
		RefreshedAtBlock: binary.BigEndian.Uint64(buf[150:158]),
	}, nil
}
