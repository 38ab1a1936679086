// Package farm holds the per-request view of a player's farm and the
// market price book. Values are read-only once built by a provider.
package farm

import (
	"time"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
)

type Construction struct {
	TargetLevel int
	ReadyAt     time.Time
}

// Remaining returns the time left until ReadyAt, floored at zero.
func (c Construction) Remaining(now time.Time) time.Duration {
	d := c.ReadyAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type Snapshot struct {
	FarmID   uint64
	Username string

	Balance   decimal.Decimal // SFL
	Coins     decimal.Decimal
	Inventory map[string]decimal.Decimal
	Equipped  map[string]string

	// Island and Level come from the land API and are empty/zero when it
	// was unavailable.
	Island       string
	Level        int
	BumpkinLevel int

	Construction *Construction

	FetchedAt time.Time
	Warnings  []string
}

// HasPosition reports whether the snapshot knows where the farm stands.
func (s *Snapshot) HasPosition() bool {
	return s != nil && s.Island != "" && s.Level > 0
}

func (s *Snapshot) Position() catalog.Position {
	return catalog.Position{Island: s.Island, Level: s.Level}
}

// Have returns the owned amount of a requirement key. SFL and Coins are
// balances, everything else is looked up in the inventory.
func (s *Snapshot) Have(name string) decimal.Decimal {
	switch name {
	case catalog.KeySFL:
		return s.Balance
	case catalog.KeyCoins:
		return s.Coins
	}
	if v, ok := s.Inventory[name]; ok {
		return v
	}
	return decimal.Zero
}

// Building reports whether a construction is underway at the time of
// the snapshot.
func (s *Snapshot) Building() bool {
	return s != nil && s.Construction != nil
}

type Price struct {
	Coins decimal.NullDecimal
	SFL   decimal.NullDecimal
}

type PriceBook struct {
	Items     map[string]Price
	FetchedAt time.Time
}

// SFL returns the SFL price of an item; unknown items cost zero.
func (b *PriceBook) SFL(name string) decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	if p, ok := b.Items[name]; ok && p.SFL.Valid {
		return p.SFL.Decimal
	}
	return decimal.Zero
}
