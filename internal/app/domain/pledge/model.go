// Package pledge defines the egg pledge records managed by the registry
// service and the per-account counters that gate their lifecycle.
package pledge

import "time"

// Protocol constants. These are fixed by the pledge contract and are exposed
// unchanged on the read-only query surface.
const (
	// SurrenderThreshold is the minimum payment, in minor units, that must
	// accompany a surrender.
	SurrenderThreshold int64 = 10_000_000_000_000

	// EditLockCount is the edit count at which the edit window starts to
	// apply.
	EditLockCount = 2

	// EditLockWindow is how long after a record's last send a heavily
	// edited record stays locked. Edits never refresh the window; only
	// generate and transfer stamp SentAt.
	EditLockWindow = 1_500_000 * time.Second
)

// Egg is a pledge record. A record is created by generate, mutated in place
// by edit, relocated by transfer and removed by surrender.
type Egg struct {
	// ID is assigned once at creation and never changes. It is a query
	// handle only; see Matches for how records are located.
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	EditCount int       `json:"edit_count"`
	SentAt    time.Time `json:"sent_at"`
	Wish      string    `json:"wish"`
	Colour    string    `json:"colour"`
}

// Matches reports whether the record matches a caller-supplied descriptor.
// Identity is the exact tuple of owner, edit count, timestamp, wish and
// colour; the creation ID is deliberately excluded so a descriptor captured
// from the query surface before the ID existed still resolves.
func (e Egg) Matches(desc Egg) bool {
	return e.Owner == desc.Owner &&
		e.EditCount == desc.EditCount &&
		e.SentAt.Equal(desc.SentAt) &&
		e.Wish == desc.Wish &&
		e.Colour == desc.Colour
}

// Account carries the per-identity counters. HasGenerated is set once and
// never cleared; TransferCount is capped at one; GivenCount is cumulative.
type Account struct {
	Address       string    `json:"address"`
	HasGenerated  bool      `json:"has_generated"`
	TransferCount int       `json:"transfer_count"`
	GivenCount    int       `json:"given_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
