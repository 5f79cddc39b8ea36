// Package chain contains the Neo N3 production adapters for the oracle and
// value-rail capabilities. Local and test wiring uses the in-process
// adapters instead; nothing here is consulted by the registry logic itself.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// Config carries the chain connection settings.
type Config struct {
	RPCEndpoint    string `yaml:"rpc_endpoint"`
	OracleContract string `yaml:"oracle_contract"`
	GasToken       string `yaml:"gas_token"`
	WIF            string `yaml:"wif"`
}

// Client bundles an RPC connection with a signing actor.
type Client struct {
	rpc *rpcclient.Client
	act *actor.Actor
	acc *wallet.Account
}

// Dial connects to the configured RPC endpoint and prepares a signing actor
// from the configured WIF key.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCEndpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}

	rpc, err := rpcclient.New(ctx, cfg.RPCEndpoint, rpcclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCEndpoint, err)
	}
	if err := rpc.Init(); err != nil {
		return nil, fmt.Errorf("init rpc client: %w", err)
	}

	acc, err := wallet.NewAccountFromWIF(cfg.WIF)
	if err != nil {
		return nil, fmt.Errorf("parse wif: %w", err)
	}
	act, err := actor.NewSimple(rpc, acc)
	if err != nil {
		return nil, fmt.Errorf("create actor: %w", err)
	}

	return &Client{rpc: rpc, act: act, acc: acc}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func parseContractHash(raw string) (util.Uint160, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	hash, err := util.Uint160DecodeStringLE(trimmed)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("parse contract hash %q: %w", raw, err)
	}
	return hash, nil
}
