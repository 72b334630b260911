// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/chain-txqueue/business/blockchain/app"
	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/blockchain/infra/ethereum"
	"github.com/fd1az/chain-txqueue/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
	FeeOracle         = di.NewToken[*ethereum.FeeOracle]("blockchain.FeeOracle")
)

// Private dependency tokens - internal to blockchain module
var (
	Dialer      = di.NewToken[app.Dialer]("blockchain:dialer")
	Transport   = di.NewToken[*app.Transport]("blockchain:transport")
	BlockStream = di.NewToken[*app.BlockStream]("blockchain:blockStream")
	Clock       = di.NewToken[*domain.Clock]("blockchain:clock")
	ClockSync   = di.NewToken[*app.ClockSync]("blockchain:clockSync")
)

// Helper functions for type-safe access
func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetFeeOracle(c di.ServiceRegistry) *ethereum.FeeOracle {
	return di.GetToken(c, FeeOracle)
}

func GetDialer(c di.ServiceRegistry) app.Dialer {
	return di.GetToken(c, Dialer)
}

func GetTransport(c di.ServiceRegistry) *app.Transport {
	return di.GetToken(c, Transport)
}

func GetBlockStream(c di.ServiceRegistry) *app.BlockStream {
	return di.GetToken(c, BlockStream)
}

func GetClock(c di.ServiceRegistry) *domain.Clock {
	return di.GetToken(c, Clock)
}

func GetClockSync(c di.ServiceRegistry) *app.ClockSync {
	return di.GetToken(c, ClockSync)
}
