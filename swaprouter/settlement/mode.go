package settlement

// Mode is the settlement policy of the chain the router is deployed on.
type Mode uint8

const (
	// ModeMainnet settles to Ethereum mainnet (Arbitrum One).
	ModeMainnet Mode = iota
	// ModeAnyTrust settles through a data availability committee (Arbitrum Nova).
	ModeAnyTrust
	// ModeOrbit settles to a parent Arbitrum chain (Orbit L3).
	ModeOrbit
)

const (
	ArbitrumOneChainID  uint64 = 42161
	ArbitrumNovaChainID uint64 = 42170
)

// ModeForChain maps a chain id to its mode. Unknown chains are Orbit chains.
func ModeForChain(chainID uint64) Mode {
	switch chainID {
	case ArbitrumOneChainID:
		return ModeMainnet
	case ArbitrumNovaChainID:
		return ModeAnyTrust
	}
	return ModeOrbit
}

// ModeFromTag decodes a stored mode tag. Out of range tags decode to ModeOrbit.
func ModeFromTag(tag uint8) Mode {
	switch Mode(tag) {
	case ModeMainnet, ModeAnyTrust, ModeOrbit:
		return Mode(tag)
	}
	return ModeOrbit
}

// Tag is the stored form of the mode.
func (m Mode) Tag() uint8 { return uint8(m) }

func (m Mode) String() string {
	switch m {
	case ModeMainnet:
		return "mainnet"
	case ModeAnyTrust:
		return "anytrust"
	case ModeOrbit:
		return "orbit"
	}
	return "unknown"
}

// OutputFraction is the share of the input the mode delivers, as num/den.
// It is the settlement layer fee, applied on top of any pool fee.
func (m Mode) OutputFraction() (num, den uint64) {
	switch m {
	case ModeMainnet:
		return 997, 1000
	case ModeAnyTrust:
		return 998, 1000
	}
	return 999, 1000
}
