package uniswap

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	bcdomain "github.com/fd1az/arbitrage-detector/business/blockchain/domain"
	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
)

var (
	addrTKA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	addrTKB = common.HexToAddress("0x2000000000000000000000000000000000000002")
	q96     = new(big.Int).Lsh(big.NewInt(1), 96)
)

func testRegistry(t *testing.T) *asset.Registry {
	t.Helper()
	r := asset.NewRegistry()
	for _, a := range []*asset.Asset{
		asset.MustNewToken(asset.ChainIDEthereum, addrTKA, "TKA", 18),
		asset.MustNewToken(asset.ChainIDEthereum, addrTKB, "TKB", 18),
	} {
		if err := r.Register(a); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

// fakeCaller answers getSlot0 with a fixed slot and records the pinned blocks.
type fakeCaller struct {
	mu     sync.Mutex
	slot   Slot0
	err    error
	blocks []uint64
}

func (c *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, blockNumber.Uint64())
	if c.err != nil {
		return nil, c.err
	}
	if _, err := stateViewABI.Methods[methodGetSlot0].Inputs.Unpack(msg.Data[4:]); err != nil {
		return nil, err
	}
	return stateViewABI.Methods[methodGetSlot0].Outputs.Pack(
		c.slot.SqrtPriceX96,
		big.NewInt(int64(c.slot.Tick)),
		new(big.Int).SetUint64(uint64(c.slot.ProtocolFee)),
		new(big.Int).SetUint64(uint64(c.slot.LPFee)),
	)
}

func (c *fakeCaller) calls() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.blocks...)
}

type fakeBlocks struct {
	ch chan *bcdomain.Block
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{ch: make(chan *bcdomain.Block, 8)}
}

func (f *fakeBlocks) WatchBlocks() (<-chan *bcdomain.Block, func()) {
	return f.ch, func() {}
}

func (f *fakeBlocks) push(n uint64) {
	f.ch <- &bcdomain.Block{Number: n, Timestamp: time.Unix(1_700_000_000+int64(n)*12, 0)}
}

func testConfig(instrument, token0, token1 string) Config {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.Pools = []PoolConfig{{
		Instrument: instrument,
		PoolID:     "0x21c67e77068de97969ba93d4aab21826d33ca12bb9f565d8496e8fda8a82ca27",
		Token0:     token0,
		Token1:     token1,
	}}
	return cfg
}

func next(t *testing.T, ch <-chan domain.PriceUpdate) domain.PriceUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return domain.PriceUpdate{}
}

func TestSource_PricePerBlock(t *testing.T) {
	// sqrtPriceX96 = 45 * 2^96 prices token0 at 45^2 = 2025 token1.
	caller := &fakeCaller{slot: Slot0{SqrtPriceX96: new(big.Int).Mul(big.NewInt(45), q96), LPFee: 500}}
	blocks := newFakeBlocks()

	src, err := NewSource(testConfig("TKA-TKB", "TKA", "TKB"), caller, blocks, testRegistry(t), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), domain.MustParseInstrument("TKA-TKB"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	blocks.push(100)
	u := next(t, feed.Updates())

	if !u.Bid.Equal(decimal.RequireFromString("2023.9875")) {
		t.Errorf("bid = %s, want 2023.9875", u.Bid)
	}
	if !u.Ask.Equal(decimal.RequireFromString("2026.0125")) {
		t.Errorf("ask = %s, want 2026.0125", u.Ask)
	}
	if u.Sequence != 100 || !u.ObservedAt.Equal(time.Unix(1_700_001_200, 0)) {
		t.Errorf("unexpected sequence/time %d %v", u.Sequence, u.ObservedAt)
	}
	if u.Venue != domain.VenueUniswapV4 {
		t.Errorf("venue = %s", u.Venue)
	}

	// A repeated block is not read again.
	blocks.push(100)
	blocks.push(101)
	if u := next(t, feed.Updates()); u.Sequence != 101 {
		t.Errorf("sequence = %d, want 101", u.Sequence)
	}
	if got := caller.calls(); len(got) != 2 || got[0] != 100 || got[1] != 101 {
		t.Errorf("reads pinned at %v, want [100 101]", got)
	}
}

func TestSource_InvertsWhenBaseIsToken1(t *testing.T) {
	caller := &fakeCaller{slot: Slot0{SqrtPriceX96: new(big.Int).Mul(big.NewInt(45), q96), LPFee: 0}}
	blocks := newFakeBlocks()

	src, err := NewSource(testConfig("TKB-TKA", "TKA", "TKB"), caller, blocks, testRegistry(t), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), domain.MustParseInstrument("TKB-TKA"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	blocks.push(1)
	u := next(t, feed.Updates())

	want, _ := asset.Invert(decimal.NewFromInt(2025))
	if !u.Bid.Equal(want) || !u.Ask.Equal(want) {
		t.Errorf("got bid %s ask %s, want %s", u.Bid, u.Ask, want)
	}
}

func TestSource_ReadFailureSkipsBlock(t *testing.T) {
	caller := &fakeCaller{err: errors.New("rpc unavailable")}
	blocks := newFakeBlocks()

	src, err := NewSource(testConfig("TKA-TKB", "TKA", "TKB"), caller, blocks, testRegistry(t), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	feed, err := src.Subscribe(context.Background(), domain.MustParseInstrument("TKA-TKB"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	blocks.push(1)

	select {
	case u := <-feed.Updates():
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(100 * time.Millisecond):
	}

	if err := src.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, ok := <-feed.Updates(); ok {
		t.Error("expected closed feed after shutdown")
	}
	if feed.Err() != nil {
		t.Errorf("expected clean end, got %v", feed.Err())
	}
}

func TestSource_BlockSourceEndFailsFeed(t *testing.T) {
	caller := &fakeCaller{slot: Slot0{SqrtPriceX96: q96}}
	blocks := newFakeBlocks()

	src, err := NewSource(testConfig("TKA-TKB", "TKA", "TKB"), caller, blocks, testRegistry(t), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), domain.MustParseInstrument("TKA-TKB"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	close(blocks.ch)

	for range feed.Updates() {
	}
	if !apperror.HasCode(feed.Err(), apperror.CodeEthereumSubscribeFailed) {
		t.Errorf("expected subscribe failure, got %v", feed.Err())
	}
}

func TestSource_UnknownInstrument(t *testing.T) {
	src, err := NewSource(testConfig("TKA-TKB", "TKA", "TKB"), &fakeCaller{}, newFakeBlocks(), testRegistry(t), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	_, err = src.Subscribe(context.Background(), domain.MustParseInstrument("ETH-USDC"))
	if !apperror.HasCode(err, apperror.CodeUnknownInstrument) {
		t.Errorf("expected UNKNOWN_INSTRUMENT, got %v", err)
	}
}

func TestNewSource_RejectsBadPools(t *testing.T) {
	tests := []struct {
		name string
		pool PoolConfig
	}{
		{"unknown token", PoolConfig{Instrument: "TKA-XYZ", PoolID: "0x01", Token0: "TKA", Token1: "XYZ"}},
		{"instrument mismatch", PoolConfig{Instrument: "ETH-TKB", PoolID: "0x" + common.Bytes2Hex(make([]byte, 32)), Token0: "TKA", Token1: "TKB"}},
		{"short pool id", PoolConfig{Instrument: "TKA-TKB", PoolID: "0x01", Token0: "TKA", Token1: "TKB"}},
		{"no id and no key", PoolConfig{Instrument: "TKA-TKB", Token0: "TKA", Token1: "TKB"}},
		{"unsorted key", PoolConfig{Instrument: "TKA-TKB", Token0: "TKB", Token1: "TKA", Fee: 500, TickSpacing: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Pools = []PoolConfig{tt.pool}
			if _, err := NewSource(cfg, &fakeCaller{}, newFakeBlocks(), testRegistry(t), nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolvePool_DerivesIDFromKey(t *testing.T) {
	p, err := resolvePool(PoolConfig{Instrument: "TKA-TKB", Token0: "TKA", Token1: "TKB", Fee: 500, TickSpacing: 10}, testRegistry(t), asset.ChainIDEthereum)
	if err != nil {
		t.Fatalf("resolvePool failed: %v", err)
	}
	want, err := NewPoolKey(addrTKA, addrTKB, 500, 10, common.Address{}).ID()
	if err != nil {
		t.Fatal(err)
	}
	if p.id != want {
		t.Errorf("pool id = %s, want %s", p.id.Hex(), want.Hex())
	}
}

func TestPoolKey_IDIgnoresArgumentOrder(t *testing.T) {
	a, err := NewPoolKey(addrTKA, addrTKB, 3000, 60, common.Address{}).ID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPoolKey(addrTKB, addrTKA, 3000, 60, common.Address{}).ID()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("pool id depends on currency order")
	}
	c, _ := NewPoolKey(addrTKA, addrTKB, 500, 10, common.Address{}).ID()
	if a == c {
		t.Error("different keys produced the same id")
	}
}

func TestUnpackSlot0(t *testing.T) {
	data, err := stateViewABI.Methods[methodGetSlot0].Outputs.Pack(q96, big.NewInt(-200311), big.NewInt(0), big.NewInt(3000))
	if err != nil {
		t.Fatal(err)
	}
	slot, err := unpackSlot0(data)
	if err != nil {
		t.Fatalf("unpackSlot0 failed: %v", err)
	}
	if slot.SqrtPriceX96.Cmp(q96) != 0 || slot.Tick != -200311 || slot.LPFee != 3000 {
		t.Errorf("unexpected slot %+v", slot)
	}
	if _, err := unpackSlot0([]byte{0x01}); err == nil {
		t.Error("expected error for short data")
	}
}
