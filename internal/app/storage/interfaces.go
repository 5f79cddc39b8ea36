// Package storage declares the persistence interfaces consumed by the
// application services.
package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
)

// ErrNotFound is returned by every store when the requested record does not
// exist. Implementations wrap their backend's miss (sql.ErrNoRows, a map
// lookup) into it so services can classify with errors.Is.
var ErrNotFound = errors.New("record not found")

// PledgeStore persists pledge accounts and their egg collections.
type PledgeStore interface {
	GetPledgeAccount(ctx context.Context, address string) (pledge.Account, error)

	// SavePledgeUpdate persists an account's counters together with the
	// egg collections the operation touched, as one atomic step: either
	// every write lands or none does. A nil collection value clears that
	// address's collection.
	SavePledgeUpdate(ctx context.Context, acct pledge.Account, collections map[string][]pledge.Egg) (pledge.Account, error)

	ListPledgeAccounts(ctx context.Context) ([]pledge.Account, error)

	GetEggs(ctx context.Context, address string) ([]pledge.Egg, error)
	SaveEggs(ctx context.Context, address string, eggs []pledge.Egg) error
}

// RandomnessStore persists the oracle request ledger.
type RandomnessStore interface {
	CreateRandomnessRequest(ctx context.Context, req randomness.Request) (randomness.Request, error)
	UpdateRandomnessRequest(ctx context.Context, req randomness.Request) (randomness.Request, error)
	GetRandomnessRequest(ctx context.Context, id string) (randomness.Request, error)
	ListRandomnessRequests(ctx context.Context) ([]randomness.Request, error)
}

// GasStore persists gas balances and the transfer ledger.
type GasStore interface {
	GetGasBalance(ctx context.Context, address string) (gas.Balance, error)
	SaveGasBalance(ctx context.Context, bal gas.Balance) (gas.Balance, error)

	CreateGasTransfer(ctx context.Context, tr gas.Transfer) (gas.Transfer, error)
	ListGasTransfers(ctx context.Context, address string) ([]gas.Transfer, error)
}
