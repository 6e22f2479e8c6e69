package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSubscription) Err() <-chan error { return s.errCh }

// fakeClient is a scripted node.
type fakeClient struct {
	mu      sync.Mutex
	heads   []*types.Header
	subErr  error
	latest  *types.Header
	callOut []byte
	callErr error
	calls   int
	closed  bool
	sub     *fakeSubscription
}

func (c *fakeClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.sub = newFakeSubscription()
	heads := c.heads
	go func() {
		for _, h := range heads {
			select {
			case ch <- h:
			case <-ctx.Done():
				return
			}
		}
	}()
	return c.sub, nil
}

func (c *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil, errors.New("no head")
	}
	return c.latest, nil
}

func (c *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.callOut, c.callErr
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeDialer maps urls to clients and counts dials.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	errs    map[string]error
	dials   map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		clients: make(map[string]*fakeClient),
		errs:    make(map[string]error),
		dials:   make(map[string]int),
	}
}

func (d *fakeDialer) dial(ctx context.Context, url string) (RPCClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[url]++
	if err := d.errs[url]; err != nil {
		return nil, err
	}
	c, ok := d.clients[url]
	if !ok {
		return nil, errors.New("unknown url " + url)
	}
	return c, nil
}

func (d *fakeDialer) count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[url]
}

func header(n int64) *types.Header {
	return &types.Header{Number: big.NewInt(n), Time: uint64(1_700_000_000 + n*12)}
}
