package ethereum

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-detector/business/blockchain/app"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

var _ app.ContractCaller = (*Caller)(nil)

// Caller executes eth_call through a circuit breaker over a lazily dialed
// connection. A failed call drops the connection so the next one redials.
type Caller struct {
	url    string
	dial   DialFunc
	logger logger.LoggerInterface

	mu     sync.Mutex
	client RPCClient

	cb     *circuitbreaker.CircuitBreaker[[]byte]
	tracer trace.Tracer
}

// NewCaller creates a caller for url.
func NewCaller(url string, log logger.LoggerInterface, opts ...Option) (*Caller, error) {
	if url == "" {
		return nil, apperror.Validation(apperror.CodeRequiredField, "ethereum: rpc url")
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Caller{
		url:    url,
		dial:   newOptions(opts).dial,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-call")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	c.cb = circuitbreaker.New[[]byte](cbCfg)

	return c, nil
}

// CallContract implements ContractCaller.
func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	attrs := []attribute.KeyValue{}
	if msg.To != nil {
		attrs = append(attrs, attribute.String("to", msg.To.Hex()))
	}
	if blockNumber != nil {
		attrs = append(attrs, attribute.String("block", blockNumber.String()))
	}
	ctx, span := c.tracer.Start(ctx, "eth.call", trace.WithAttributes(attrs...))
	defer span.End()

	out, err := c.cb.Execute(func() ([]byte, error) {
		client, err := c.connect(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.CallContract(ctx, msg, blockNumber)
		if err != nil {
			c.reset(client)
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		if circuitbreaker.IsOpen(err) {
			return nil, apperror.New(apperror.CodeCircuitOpen, apperror.WithContext(c.cb.Name()), apperror.WithCause(err))
		}
		return nil, apperror.External(apperror.CodeContractCallFailed, "eth_call", err)
	}

	span.SetStatus(codes.Ok, "called")
	return out, nil
}

func (c *Caller) connect(ctx context.Context) (RPCClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := c.dial(ctx, c.url)
	if err != nil {
		return nil, apperror.External(apperror.CodeEthereumConnectionFailed, "dial rpc", err)
	}
	c.client = client
	return client, nil
}

func (c *Caller) reset(failed RPCClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == failed {
		c.client.Close()
		c.client = nil
	}
}

// Close releases the connection.
func (c *Caller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
