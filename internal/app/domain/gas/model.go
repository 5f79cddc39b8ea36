// Package gas defines the balances and transfers tracked by the gas bank,
// the in-process value-transfer rail.
package gas

import "time"

// Transfer kinds.
const (
	KindDeposit = "deposit"
	KindForward = "forward"
)

// Balance is the recorded holding for one identity, in minor units.
type Balance struct {
	Address   string    `json:"address"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transfer is one ledger entry. Forwards debit From and credit To in the
// same operation.
type Transfer struct {
	ID        string    `json:"id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
