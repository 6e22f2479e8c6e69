// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"

	"github.com/fd1az/arbitrage-detector/business/blockchain/domain"
)

// BlockSubscriber delivers new chain heads.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks. Block numbers on the
	// returned channel strictly increase. It is closed by Close.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// Status returns the current connection status.
	Status() domain.ConnectionStatus

	Close() error
}

// ContractCaller executes read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}
