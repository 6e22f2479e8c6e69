package asset_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arbitrage-detector/internal/asset"
)

func TestRegistry_Lookup(t *testing.T) {
	r := asset.DefaultRegistry()

	tests := []struct {
		symbol  string
		chainID uint64
		want    *asset.Asset
		wantErr bool
	}{
		{"ETH", asset.ChainIDEthereum, asset.ETH, false},
		{"usdc", asset.ChainIDEthereum, asset.USDC, false},
		{"WBTC", asset.ChainIDEthereum, asset.WBTC, false},
		{"ETH", asset.ChainIDBase, nil, true},
		{"USDC", asset.ChainIDBase, nil, true},
		{"DOGE", asset.ChainIDEthereum, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, err := r.Lookup(tt.symbol, tt.chainID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup(%s, %d) error = %v, wantErr %v", tt.symbol, tt.chainID, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equals(tt.want) {
				t.Errorf("Lookup(%s) = %s, want %s", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestRegistry_RegisterCustomToken(t *testing.T) {
	r := asset.DefaultRegistry()
	addr := common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	uni := asset.MustNewToken(asset.ChainIDEthereum, addr, "UNI", 18)

	if err := r.Register(uni); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(uni); err == nil {
		t.Error("duplicate registration should fail")
	}

	got, ok := r.Get(asset.NewTokenAssetID(asset.ChainIDEthereum, addr))
	if !ok || got.Decimals() != 18 {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if syms := r.Symbols(); len(syms) != 6 || syms[len(syms)-1] != "WETH" {
		t.Errorf("Symbols() = %v", syms)
	}
}
