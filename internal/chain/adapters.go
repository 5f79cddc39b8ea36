package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/nep17"
	"github.com/nspcc-dev/neo-go/pkg/util"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/services/upkeep"
)

// RandomSource submits randomness requests to the on-chain oracle contract.
// The transaction hash doubles as the opaque request identifier.
type RandomSource struct {
	client   *Client
	contract util.Uint160
}

var _ upkeep.RandomnessSource = (*RandomSource)(nil)

// NewRandomSource creates a source targeting the configured oracle contract.
func NewRandomSource(client *Client, contractHash string) (*RandomSource, error) {
	hash, err := parseContractHash(contractHash)
	if err != nil {
		return nil, err
	}
	return &RandomSource{client: client, contract: hash}, nil
}

// RequestRandomWords invokes the oracle contract with the fixed parameters
// and returns the submitting transaction hash.
func (r *RandomSource) RequestRandomWords(_ context.Context, params domain.Params) (string, error) {
	txHash, _, err := r.client.act.SendCall(r.contract, "requestRandomWords",
		params.Lane,
		params.SubscriptionID,
		params.Confirmations,
		params.CallbackGasLimit,
		params.WordCount,
	)
	if err != nil {
		return "", fmt.Errorf("invoke oracle: %w", err)
	}
	return "0x" + txHash.StringLE(), nil
}

// Rail forwards payments as NEP-17 token transfers.
type Rail struct {
	token *nep17.Token
	from  util.Uint160
}

var _ pledge.PaymentRail = (*Rail)(nil)

// NewRail creates a rail moving the configured token from the client's
// signing account.
func NewRail(client *Client, tokenHash string) (*Rail, error) {
	hash, err := parseContractHash(tokenHash)
	if err != nil {
		return nil, err
	}
	return &Rail{
		token: nep17.New(client.act, hash),
		from:  client.acc.ScriptHash(),
	}, nil
}

// Forward submits a token transfer to the receiver. The from identity is
// fixed to the signing account; the registry-level payer is recorded by the
// caller.
func (r *Rail) Forward(_ context.Context, _, to string, amount int64) error {
	receiver, err := address.StringToUint160(to)
	if err != nil {
		return fmt.Errorf("parse receiver %q: %w", to, err)
	}

	if _, _, err := r.token.Transfer(r.from, receiver, big.NewInt(amount), nil); err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}
	return nil
}
