package registry

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/holiman/uint256"
)

const dayInSeconds uint64 = 86_400

const maxPriceImpact1k uint64 = 1_000

var (
	wad = uint256.NewInt(1_000_000_000_000_000_000)
	// oneThousandTokens is the reference trade size of PoolStats.PriceImpact1k.
	oneThousandTokens = new(uint256.Int).Mul(uint256.NewInt(1_000), wad)
)

// volumeWindow accumulates executed input volume over a fixed 86400s epoch.
type volumeWindow struct {
	epochStart uint64
	volume     *uint256.Int
}

func (w volumeWindow) expired(now uint64) bool {
	return w.volume == nil || now > w.epochStart+dayInSeconds
}

func (w volumeWindow) current(now uint64) *uint256.Int {
	if w.expired(now) {
		return new(uint256.Int)
	}
	return w.volume.Clone()
}

func (w volumeWindow) add(amount *uint256.Int, now uint64) (volumeWindow, error) {
	if w.expired(now) {
		return volumeWindow{epochStart: now, volume: amount.Clone()}, nil
	}
	sum, err := amm.Add(w.volume, amount)
	if err != nil {
		return volumeWindow{}, err
	}
	return volumeWindow{epochStart: w.epochStart, volume: sum}, nil
}

func computeStats(p *Pool, volume *uint256.Int) (PoolStats, error) {
	total, err := reserveTotal(p)
	if err != nil {
		return PoolStats{}, err
	}
	tvl := new(uint256.Int).Div(total, wad)

	fees, err := amm.MulDiv(volume, uint64(p.FeeBps), amm.BpsDenominator)
	if err != nil {
		return PoolStats{}, err
	}

	impact := maxPriceImpact1k
	if p.ReserveA.Gt(oneThousandTokens) {
		scaled, err := amm.Mul(oneThousandTokens, uint256.NewInt(amm.BpsDenominator))
		if err != nil {
			return PoolStats{}, err
		}
		ratio := scaled.Div(scaled, p.ReserveA)
		if ratio.IsUint64() && ratio.Uint64() < impact {
			impact = ratio.Uint64()
		}
	}

	var utilization uint64
	if !tvl.IsZero() {
		whole := new(uint256.Int).Div(volume, wad)
		ratio, err := amm.Mul(whole, uint256.NewInt(amm.BpsDenominator))
		if err != nil {
			return PoolStats{}, err
		}
		ratio.Div(ratio, tvl)
		utilization = amm.BpsDenominator
		if ratio.IsUint64() && ratio.Uint64() < utilization {
			utilization = ratio.Uint64()
		}
	}

	return PoolStats{
		TVL:            tvl,
		Volume24h:      volume,
		Fees24h:        fees,
		PriceImpact1k:  impact,
		UtilizationBps: utilization,
	}, nil
}
