// Package randomness defines the request ledger for the two-phase
// oracle round trip and the reward index computation.
package randomness

import "time"

// Fixed oracle request parameters.
const (
	// Confirmations is the block depth the oracle waits for before
	// fulfilling a request.
	Confirmations = 3

	// WordCount is the number of random words requested per upkeep.
	WordCount = 1

	// AnswerSpace is the size of the reward index space; every fulfilled
	// word reduces to an index in [0, AnswerSpace).
	AnswerSpace = 10
)

// Defaults for the opaque lane/subscription parameters passed through to the
// oracle. They are uninterpreted here.
const (
	DefaultLane             = "0x8af398995b04c28e9951adb9721ef74c74f93e6a478f39e7e0777be13527e7ef"
	DefaultSubscriptionID   = uint64(1)
	DefaultCallbackGasLimit = uint32(100_000)
)

// Status tracks a request through the oracle round trip.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
)

// Params are the knobs forwarded verbatim on every randomness request.
type Params struct {
	Lane             string `json:"lane"`
	SubscriptionID   uint64 `json:"subscription_id"`
	Confirmations    int    `json:"confirmations"`
	CallbackGasLimit uint32 `json:"callback_gas_limit"`
	WordCount        int    `json:"word_count"`
}

// DefaultParams returns the fixed request parameters.
func DefaultParams() Params {
	return Params{
		Lane:             DefaultLane,
		SubscriptionID:   DefaultSubscriptionID,
		Confirmations:    Confirmations,
		CallbackGasLimit: DefaultCallbackGasLimit,
		WordCount:        WordCount,
	}
}

// Request records one issued randomness request. The ID is the opaque
// identifier handed back by the oracle; Account records only the identity
// whose readiness triggered the request, never a specific egg.
type Request struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	Params      Params    `json:"params"`
	Status      Status    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
	FulfilledAt time.Time `json:"fulfilled_at,omitempty"`
	Words       []uint64  `json:"words,omitempty"`
	Index       int       `json:"index"`
}

// DrawIndex reduces the first random word to a reward index. The reduction
// is pure: identical words always yield identical indices.
func DrawIndex(words []uint64) int {
	return int(words[0] % AnswerSpace)
}
