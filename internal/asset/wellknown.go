package asset

import "github.com/ethereum/go-ethereum/common"

const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
	ChainIDBase     = 8453
	ChainIDUnichain = 130
)

// Mainnet tokens quoted by the default Uniswap v4 pools.
var (
	USDC = MustNewToken(ChainIDEthereum, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", 6)
	USDT = MustNewToken(ChainIDEthereum, common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), "USDT", 6)
	WETH = MustNewToken(ChainIDEthereum, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", 18)
	WBTC = MustNewToken(ChainIDEthereum, common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), "WBTC", 8)

	// v4 pools hold native ETH, so ETH is currency0 of the ETH pools.
	ETH = NewAsset(NewNativeAssetID(ChainIDEthereum), "ETH", 18)
)

// DefaultRegistry returns a registry holding the mainnet assets above.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{ETH, USDC, USDT, WETH, WBTC} {
		_ = r.Register(a)
	}
	return r
}
