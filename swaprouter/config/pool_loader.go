package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/router"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "config").Logger()
}

// LoadPoolSeed reads a pool seed from a json or toml file.
func LoadPoolSeed(path string) (*PoolSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool seed: %w", err)
	}

	var seed PoolSeed
	switch {
	case strings.HasSuffix(path, ".json"):
		err = json.Unmarshal(data, &seed)
	case strings.HasSuffix(path, ".toml"):
		err = toml.Unmarshal(data, &seed)
	default:
		return nil, fmt.Errorf("pool seed must be a json or toml file: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool seed: %w", err)
	}

	if err := verifyPoolSeed(&seed); err != nil {
		return nil, fmt.Errorf("failed to verify pool seed: %w", err)
	}
	return &seed, nil
}

func verifyPoolSeed(seed *PoolSeed) error {
	for _, list := range [][]string{seed.Updaters, seed.Validators, seed.Callers} {
		for _, addr := range list {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("invalid role address %q", addr)
			}
		}
	}

	verified := false
	for i, p := range seed.Pools {
		for _, addr := range []string{p.PoolAddress, p.TokenA, p.TokenB} {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("pool %d: invalid address %q", i, addr)
			}
		}
		if _, err := parsePoolType(p.PoolType); err != nil {
			return fmt.Errorf("pool %d: %w", i, err)
		}
		verified = verified || p.Verified
	}
	if verified && len(seed.Validators) == 0 {
		return fmt.Errorf("verified pools need at least one validator")
	}
	return nil
}

func parsePoolType(s string) (registry.PoolType, error) {
	switch s {
	case "", "constant_product":
		return registry.PoolTypeConstantProduct, nil
	case "stable":
		return registry.PoolTypeStable, nil
	case "concentrated":
		return registry.PoolTypeConcentrated, nil
	}
	return 0, fmt.Errorf("unknown pool type %q", s)
}

/*
SeedEngine grants the seed's roles with the owner's authority and registers its
pools. Pools that already exist, for example after a restore from the store,
are skipped so seeding is safe on every start. It returns the number of pools
added.
*/
func SeedEngine(ctx context.Context, engine *router.Engine, owner common.Address, seed *PoolSeed) (int, error) {
	reg := engine.Registry()
	for _, addr := range seed.Updaters {
		if err := reg.AddUpdater(owner, common.HexToAddress(addr)); err != nil {
			return 0, fmt.Errorf("failed to grant updater: %w", err)
		}
	}
	for _, addr := range seed.Validators {
		if err := reg.AddValidator(owner, common.HexToAddress(addr)); err != nil {
			return 0, fmt.Errorf("failed to grant validator: %w", err)
		}
	}
	for _, addr := range seed.Callers {
		if err := engine.AddAuthorizedCaller(owner, common.HexToAddress(addr)); err != nil {
			return 0, fmt.Errorf("failed to authorize caller: %w", err)
		}
	}

	added := 0
	for _, p := range seed.Pools {
		poolType, _ := parsePoolType(p.PoolType)
		id, err := engine.AddPool(ctx, owner, registry.AddPoolParams{
			PoolAddress: common.HexToAddress(p.PoolAddress),
			TokenA:      common.HexToAddress(p.TokenA),
			TokenB:      common.HexToAddress(p.TokenB),
			FeeBps:      p.FeeBps,
			ChainID:     p.ChainID,
			PoolType:    poolType,
		})
		if errors.Is(err, swaperr.PoolAlreadyExists) {
			log.Debug().Str("pool", p.PoolAddress).Msg("Seeded pool already registered")
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to add pool %s: %w", p.PoolAddress, err)
		}
		added++

		if p.Verified {
			if err := engine.VerifyPool(common.HexToAddress(seed.Validators[0]), id); err != nil {
				return added, fmt.Errorf("failed to verify pool %s: %w", p.PoolAddress, err)
			}
		}
	}

	log.Info().Int("added", added).Int("seeded", len(seed.Pools)).Msg("Pool seed applied")
	return added, nil
}
