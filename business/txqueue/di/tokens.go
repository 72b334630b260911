// Package di contains dependency injection tokens for the txqueue context.
package di

import (
	"github.com/fd1az/chain-txqueue/business/txqueue/app"
	"github.com/fd1az/chain-txqueue/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Queue    = di.NewToken[*app.Queue]("txqueue.Queue")
	Sequence = di.NewToken[*app.SequenceManager]("txqueue.SequenceManager")
	Signers  = di.NewToken[*app.SignerBinding]("txqueue.SignerBinding")
)

// Private dependency tokens - internal to txqueue module
var (
	SignerFactory = di.NewToken[app.SignerFactory]("txqueue:signerFactory")
)

// Helper functions for type-safe access
func GetQueue(c di.ServiceRegistry) *app.Queue {
	return di.GetToken(c, Queue)
}

func GetSequence(c di.ServiceRegistry) *app.SequenceManager {
	return di.GetToken(c, Sequence)
}

func GetSigners(c di.ServiceRegistry) *app.SignerBinding {
	return di.GetToken(c, Signers)
}

func GetSignerFactory(c di.ServiceRegistry) app.SignerFactory {
	return di.GetToken(c, SignerFactory)
}
