// Package asset models the on-chain currencies behind Uniswap pools and the
// decimal price helpers every venue adapter shares.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies a currency by chain and contract address. Native
// coins use the zero address, which is also how v4 pool keys encode them.
type AssetID struct {
	chainID uint64
	address common.Address
}

// NewNativeAssetID returns the id of chainID's native coin.
func NewNativeAssetID(chainID uint64) AssetID {
	return AssetID{chainID: chainID}
}

// NewTokenAssetID returns the id of an ERC20 token. addr must be non-zero.
func NewTokenAssetID(chainID uint64, addr common.Address) AssetID {
	if addr == (common.Address{}) {
		panic("asset: zero token address, use NewNativeAssetID")
	}
	return AssetID{chainID: chainID, address: addr}
}

func (id AssetID) ChainID() uint64         { return id.chainID }
func (id AssetID) Address() common.Address { return id.address }
func (id AssetID) IsNative() bool          { return id.address == (common.Address{}) }

func (id AssetID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("chain:%d/native", id.chainID)
	}
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}

// Asset is a currency with its display symbol and on-chain precision.
// Identity is the AssetID; two chains may reuse a symbol.
type Asset struct {
	id       AssetID
	symbol   string
	decimals uint8
}

// NewAsset creates an Asset. It panics on an empty symbol or more than 30
// decimals, both of which indicate a typo in a static table.
func NewAsset(id AssetID, symbol string, decimals uint8) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic("asset: suspicious decimals (>30)")
	}
	return &Asset{id: id, symbol: symbol, decimals: decimals}
}

// MustNewToken creates an ERC20 asset.
func MustNewToken(chainID uint64, address common.Address, symbol string, decimals uint8) *Asset {
	return NewAsset(NewTokenAssetID(chainID, address), symbol, decimals)
}

func (a *Asset) ID() AssetID             { return a.id }
func (a *Asset) Symbol() string          { return a.symbol }
func (a *Asset) Decimals() uint8         { return a.decimals }
func (a *Asset) ChainID() uint64         { return a.id.chainID }
func (a *Asset) Address() common.Address { return a.id.address }
func (a *Asset) String() string          { return a.symbol }

// Equals compares by id.
func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.id == other.id
}
