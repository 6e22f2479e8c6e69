package app

import (
	"context"
	"errors"
	"sync"

	"github.com/fd1az/arbitrage-detector/business/blockchain/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

// BlockchainService shares one head subscription and one contract caller
// between every on-chain consumer.
type BlockchainService struct {
	subscriber BlockSubscriber
	caller     ContractCaller
	logger     logger.LoggerInterface

	mu       sync.Mutex
	watchers map[int]chan *domain.Block
	nextID   int
	latest   *domain.Block
	running  bool
	stopped  bool
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(subscriber BlockSubscriber, caller ContractCaller, log logger.LoggerInterface) *BlockchainService {
	if log == nil {
		log = logger.Nop()
	}
	return &BlockchainService{
		subscriber: subscriber,
		caller:     caller,
		logger:     log,
		watchers:   make(map[int]chan *domain.Block),
	}
}

// Caller returns the shared contract caller.
func (s *BlockchainService) Caller() ContractCaller {
	return s.caller
}

// WatchBlocks registers a consumer that only cares about the newest head.
// The channel holds at most one block: a slow reader skips intermediate
// heads. The returned func unregisters the watcher and closes the channel.
func (s *BlockchainService) WatchBlocks() (<-chan *domain.Block, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.Block, 1)
	if s.stopped {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	if s.latest != nil {
		ch <- s.latest
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
}

// Run subscribes to heads and fans them out until ctx is done or the
// subscription ends. Every watcher channel is closed on return.
func (s *BlockchainService) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("blockchain service already started"))
	}
	s.running = true
	s.mu.Unlock()
	defer s.stop()

	blocks, err := s.subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "block fan-out started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-blocks:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return apperror.New(apperror.CodeEthereumSubscribeFailed,
					apperror.WithContext("block subscription ended"))
			}
			s.publish(b)
		}
	}
}

func (s *BlockchainService) publish(b *domain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.After(s.latest) {
		return
	}
	s.latest = b
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- b
	}
}

func (s *BlockchainService) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

// Latest returns the newest head seen, or nil.
func (s *BlockchainService) Latest() *domain.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Status returns the subscriber's connection status.
func (s *BlockchainService) Status() domain.ConnectionStatus {
	return s.subscriber.Status()
}

// Close releases the subscriber.
func (s *BlockchainService) Close() error {
	var errs []error
	if err := s.subscriber.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.caller.(interface{ Close() }); ok {
		c.Close()
	}
	return errors.Join(errs...)
}
