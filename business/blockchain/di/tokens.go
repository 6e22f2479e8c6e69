// Package di declares the blockchain context's container tokens.
package di

import (
	"github.com/fd1az/arbitrage-detector/business/blockchain/app"
	"github.com/fd1az/arbitrage-detector/internal/di"
)

// BlockchainService is the context's public service. Pricing resolves it to
// reach the contract caller and the head stream.
var BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")

var (
	BlockSubscriber = di.NewToken[app.BlockSubscriber]("blockchain:blockSubscriber")
	ContractCaller  = di.NewToken[app.ContractCaller]("blockchain:contractCaller")
)

func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetBlockSubscriber(c di.ServiceRegistry) app.BlockSubscriber {
	return di.GetToken(c, BlockSubscriber)
}

func GetContractCaller(c di.ServiceRegistry) app.ContractCaller {
	return di.GetToken(c, ContractCaller)
}
