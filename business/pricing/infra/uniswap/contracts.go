package uniswap

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StateView deployments.
var (
	StateViewEthereum = common.HexToAddress("0x7fFE42C4a5DEeA5b0feC41C94C136Cf115597227")
	StateViewBase     = common.HexToAddress("0xA3c0c9b65baD0b08107Aa264b0f3dB444b867A71")
)

// Fee tiers (in hundredths of a bip)
const (
	FeeTier001 = 100   // 0.01%
	FeeTier005 = 500   // 0.05%
	FeeTier030 = 3000  // 0.30%
	FeeTier100 = 10000 // 1.00%
)

// StateViewABI is the ABI for the Uniswap V4 StateView lens.
// Only includes getSlot0 which we use for spot prices.
const StateViewABI = `[
	{
		"inputs": [
			{"internalType": "PoolId", "name": "poolId", "type": "bytes32"}
		],
		"name": "getSlot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint24", "name": "protocolFee", "type": "uint24"},
			{"internalType": "uint24", "name": "lpFee", "type": "uint24"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const methodGetSlot0 = "getSlot0"

// Slot0 is the decoded getSlot0 result.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	ProtocolFee  uint32
	LPFee        uint32 // parts per million
}

var stateViewABI = mustParseABI(StateViewABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("uniswap: invalid ABI: " + err.Error())
	}
	return parsed
}

// packGetSlot0 encodes the getSlot0 call for poolID.
func packGetSlot0(poolID common.Hash) ([]byte, error) {
	return stateViewABI.Pack(methodGetSlot0, poolID)
}

// unpackSlot0 decodes getSlot0 return data.
func unpackSlot0(data []byte) (Slot0, error) {
	values, err := stateViewABI.Unpack(methodGetSlot0, data)
	if err != nil {
		return Slot0{}, err
	}
	if len(values) != 4 {
		return Slot0{}, fmt.Errorf("getSlot0: expected 4 values, got %d", len(values))
	}

	sqrtPrice, ok0 := values[0].(*big.Int)
	tick, ok1 := values[1].(*big.Int)
	protocolFee, ok2 := values[2].(*big.Int)
	lpFee, ok3 := values[3].(*big.Int)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return Slot0{}, fmt.Errorf("getSlot0: unexpected output types %T %T %T %T", values[0], values[1], values[2], values[3])
	}

	return Slot0{
		SqrtPriceX96: sqrtPrice,
		Tick:         int32(tick.Int64()),
		ProtocolFee:  uint32(protocolFee.Uint64()),
		LPFee:        uint32(lpFee.Uint64()),
	}, nil
}

// PoolKey identifies a V4 pool. Currencies are sorted by address; the zero
// address is native ETH.
type PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         uint32
	TickSpacing int32
	Hooks       common.Address
}

var poolKeyArgs = func() abi.Arguments {
	address, _ := abi.NewType("address", "", nil)
	uint24, _ := abi.NewType("uint24", "", nil)
	int24, _ := abi.NewType("int24", "", nil)
	return abi.Arguments{
		{Type: address}, {Type: address}, {Type: uint24}, {Type: int24}, {Type: address},
	}
}()

// NewPoolKey orders the currencies.
func NewPoolKey(a, b common.Address, fee uint32, tickSpacing int32, hooks common.Address) PoolKey {
	if bytes.Compare(b.Bytes(), a.Bytes()) < 0 {
		a, b = b, a
	}
	return PoolKey{Currency0: a, Currency1: b, Fee: fee, TickSpacing: tickSpacing, Hooks: hooks}
}

// ID returns keccak256(abi.encode(key)), the PoolId used by the PoolManager.
func (k PoolKey) ID() (common.Hash, error) {
	encoded, err := poolKeyArgs.Pack(
		k.Currency0,
		k.Currency1,
		new(big.Int).SetUint64(uint64(k.Fee)),
		big.NewInt(int64(k.TickSpacing)),
		k.Hooks,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode pool key: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
