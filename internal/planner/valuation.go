package planner

import (
	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/farm"
)

type ValuedRequirement struct {
	Name      string
	Needed    decimal.Decimal
	Have      decimal.Decimal
	Shortfall decimal.Decimal
	Price     decimal.Decimal // SFL per unit, zero when unpriced

	NeededValue    decimal.Decimal
	ShortfallValue decimal.Decimal
}

type Valuation struct {
	Items         []ValuedRequirement // sorted by name
	TotalCost     decimal.Decimal
	ShortfallCost decimal.Decimal
}

// Valuate prices a requirements total in SFL. Items missing from the book
// cost zero. A nil snapshot treats every item as unowned.
func Valuate(reqs map[string]decimal.Decimal, snap *farm.Snapshot, prices *farm.PriceBook) Valuation {
	v := Valuation{Items: make([]ValuedRequirement, 0, len(reqs))}
	for _, name := range sortedKeys(reqs) {
		needed := reqs[name]
		have := decimal.Zero
		if snap != nil {
			have = decimal.Max(snap.Have(name), decimal.Zero)
		}
		price := prices.SFL(name)
		short := decimal.Max(needed.Sub(have), decimal.Zero)

		it := ValuedRequirement{
			Name:           name,
			Needed:         needed,
			Have:           have,
			Shortfall:      short,
			Price:          price,
			NeededValue:    needed.Mul(price),
			ShortfallValue: short.Mul(price),
		}
		v.TotalCost = v.TotalCost.Add(it.NeededValue)
		v.ShortfallCost = v.ShortfallCost.Add(it.ShortfallValue)
		v.Items = append(v.Items, it)
	}
	return v
}
