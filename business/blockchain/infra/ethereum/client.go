// Package ethereum provides Ethereum node adapters: head subscription and
// contract calls.
package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	tracerName = "github.com/fd1az/arbitrage-detector/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/arbitrage-detector/business/blockchain/infra/ethereum"
)

// RPCClient is the subset of *ethclient.Client the adapters use.
type RPCClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// DialFunc connects to a node endpoint.
type DialFunc func(ctx context.Context, url string) (RPCClient, error)

// Option configures the adapters.
type Option func(*options)

type options struct {
	dial DialFunc
}

// WithDial replaces the node dialer.
func WithDial(d DialFunc) Option {
	return func(o *options) { o.dial = d }
}

func newOptions(opts []Option) options {
	o := options{dial: dialEthclient}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func dialEthclient(ctx context.Context, url string) (RPCClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}
