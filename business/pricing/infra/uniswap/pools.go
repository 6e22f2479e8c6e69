package uniswap

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
)

// PoolConfig describes one pool to poll. Either PoolID is set, or the pool
// key fields from which the id is derived.
type PoolConfig struct {
	Instrument  string
	PoolID      string
	Token0      string
	Token1      string
	Fee         uint32
	TickSpacing int32
	Hooks       string
}

// pool is a resolved PoolConfig.
type pool struct {
	instrument domain.Instrument
	id         common.Hash
	token0     *asset.Asset
	token1     *asset.Asset
	// invert is set when the instrument's base is token1: slot0 prices
	// token0 in token1.
	invert bool
}

// wrapped tokens quote the same asset as their native counterpart.
var symbolAliases = map[string]string{
	"WETH": "ETH",
	"WBTC": "BTC",
}

func canonicalSymbol(s string) string {
	s = strings.ToUpper(s)
	if alias, ok := symbolAliases[s]; ok {
		return alias
	}
	return s
}

func resolvePool(cfg PoolConfig, registry *asset.Registry, chainID uint64) (pool, error) {
	inst, err := domain.ParseInstrument(cfg.Instrument)
	if err != nil {
		return pool{}, apperror.Validation(apperror.CodeInvalidInput, err.Error())
	}

	token0, err := registry.Lookup(cfg.Token0, chainID)
	if err != nil {
		return pool{}, apperror.New(apperror.CodePoolNotFound, apperror.WithContext(inst.String()), apperror.WithCause(err))
	}
	token1, err := registry.Lookup(cfg.Token1, chainID)
	if err != nil {
		return pool{}, apperror.New(apperror.CodePoolNotFound, apperror.WithContext(inst.String()), apperror.WithCause(err))
	}

	p := pool{instrument: inst, token0: token0, token1: token1}

	base, quote := canonicalSymbol(inst.Base), canonicalSymbol(inst.Quote)
	sym0, sym1 := canonicalSymbol(token0.Symbol()), canonicalSymbol(token1.Symbol())
	switch {
	case base == sym0 && quote == sym1:
	case base == sym1 && quote == sym0:
		p.invert = true
	default:
		return pool{}, apperror.New(apperror.CodeUnknownInstrument,
			apperror.WithContext(fmt.Sprintf("%s does not match pool tokens %s/%s", inst, token0.Symbol(), token1.Symbol())))
	}

	if cfg.PoolID != "" {
		raw := common.FromHex(cfg.PoolID)
		if len(raw) != common.HashLength {
			return pool{}, apperror.Validation(apperror.CodeInvalidFormat, "pool_id must be 32 bytes: "+cfg.PoolID)
		}
		p.id = common.BytesToHash(raw)
		return p, nil
	}

	if cfg.Fee == 0 || cfg.TickSpacing == 0 {
		return pool{}, apperror.Validation(apperror.CodeRequiredField, inst.String()+": pool_id or fee and tick_spacing")
	}
	hooks := common.Address{}
	if cfg.Hooks != "" {
		if !common.IsHexAddress(cfg.Hooks) {
			return pool{}, apperror.Validation(apperror.CodeInvalidFormat, "hooks: "+cfg.Hooks)
		}
		hooks = common.HexToAddress(cfg.Hooks)
	}
	key := NewPoolKey(token0.ID().Address(), token1.ID().Address(), cfg.Fee, cfg.TickSpacing, hooks)
	if key.Currency0 != token0.ID().Address() {
		return pool{}, apperror.Validation(apperror.CodeInvalidInput,
			fmt.Sprintf("%s: token0 %s must sort before token1 %s", inst, token0.Symbol(), token1.Symbol()))
	}
	if p.id, err = key.ID(); err != nil {
		return pool{}, err
	}
	return p, nil
}
