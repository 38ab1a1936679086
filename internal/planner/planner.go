// Package planner answers expansion questions against the catalogue: how
// close a farm is to its next plot, and what a multi-plot goal costs and
// unlocks.
package planner

import (
	"io"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/farm"
)

var hundred = decimal.NewFromInt(100)

type Planner struct {
	cat *catalog.Catalog
	log *log.Logger
}

func New(cat *catalog.Catalog, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Planner{cat: cat, log: logger}
}

func (p *Planner) Catalog() *catalog.Catalog { return p.cat }

type ResourceProgress struct {
	Name       string
	Have       decimal.Decimal
	Required   decimal.Decimal
	Percentage decimal.Decimal // 0..100, unrounded
}

// Shortfall is how much is still missing, never negative.
func (r ResourceProgress) Shortfall() decimal.Decimal {
	return decimal.Max(r.Required.Sub(r.Have), decimal.Zero)
}

// Surplus is how much is owned beyond the requirement, never negative.
func (r ResourceProgress) Surplus() decimal.Decimal {
	return decimal.Max(r.Have.Sub(r.Required), decimal.Zero)
}

func (r ResourceProgress) Met() bool { return r.Have.GreaterThanOrEqual(r.Required) }

type NextAnalysis struct {
	Island    string
	NextLevel int

	// Actionable is false when the next plot does not exist on the
	// current island or declares no requirements. The remaining fields
	// are zero in that case.
	Actionable bool

	BumpkinLevel int
	Time         string
	TimeSeconds  int64
	Resources    []ResourceProgress
}

// Ready reports whether every resource requirement is met.
func (n *NextAnalysis) Ready() bool {
	if n == nil || !n.Actionable {
		return false
	}
	for _, r := range n.Resources {
		if !r.Met() {
			return false
		}
	}
	return true
}

// AnalyseNext compares the plot after the snapshot's position with what
// the farm owns. It returns nil when the snapshot has no position.
func (p *Planner) AnalyseNext(snap *farm.Snapshot) *NextAnalysis {
	if !snap.HasPosition() {
		p.log.Printf("analyse next: farm %d has no island/level", farmID(snap))
		return nil
	}
	if _, ok := p.cat.Island(snap.Island); !ok {
		p.log.Printf("analyse next: farm %d on unknown island %q", snap.FarmID, snap.Island)
		return nil
	}

	out := &NextAnalysis{Island: snap.Island, NextLevel: snap.Level + 1}
	plot, ok := p.cat.Plot(snap.Island, out.NextLevel)
	if !ok || !plot.HasRequirements() {
		return out
	}
	if plot.Err != nil {
		p.log.Printf("analyse next: skipping defective plot: %v", plot.Err)
		return out
	}

	out.Actionable = true
	out.BumpkinLevel = plot.BumpkinLevel
	out.Time = plot.Time
	out.TimeSeconds = plot.TimeSeconds
	out.Resources = make([]ResourceProgress, 0, len(plot.Resources))
	for _, req := range plot.Resources {
		have := decimal.Max(snap.Have(req.Name), decimal.Zero)
		out.Resources = append(out.Resources, ResourceProgress{
			Name:       req.Name,
			Have:       have,
			Required:   req.Amount,
			Percentage: percentage(have, req.Amount),
		})
	}
	return out
}

func percentage(have, required decimal.Decimal) decimal.Decimal {
	if !required.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(have.Div(required).Mul(hundred), hundred)
}

func farmID(s *farm.Snapshot) uint64 {
	if s == nil {
		return 0
	}
	return s.FarmID
}

type IslandGoals struct {
	Island string
	Levels []int
}

// EnumerateGoals lists, per island in catalogue order, the levels after
// the snapshot's effective position. Islands declaring no costs are
// omitted. A snapshot without a position yields nil.
func (p *Planner) EnumerateGoals(snap *farm.Snapshot) []IslandGoals {
	start, ok := p.EffectiveStart(snap)
	if !ok {
		return nil
	}
	var out []IslandGoals
	for _, isl := range p.cat.Islands() {
		if !isl.HasCosts() {
			continue
		}
		g := IslandGoals{Island: isl.Name}
		for _, plot := range isl.Plots {
			if c, ok := p.cat.Compare(plot.Position(), start); ok && c > 0 {
				g.Levels = append(g.Levels, plot.Level)
			}
		}
		if len(g.Levels) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// EffectiveStart returns the position planning starts from. An ongoing
// construction moves it onto the plot being built, whose cost is
// already paid.
func (p *Planner) EffectiveStart(snap *farm.Snapshot) (catalog.Position, bool) {
	if !snap.HasPosition() {
		return catalog.Position{}, false
	}
	if _, ok := p.cat.Island(snap.Island); !ok {
		return catalog.Position{}, false
	}
	pos := snap.Position()
	if !snap.Building() {
		return pos, true
	}
	return p.advance(pos, snap.Construction.TargetLevel), true
}

func (p *Planner) advance(pos catalog.Position, target int) catalog.Position {
	if plot, ok := p.cat.Plot(pos.Island, target); ok && target > pos.Level {
		return plot.Position()
	}
	if next, ok := p.cat.Next(pos); ok {
		return next.Position()
	}
	return pos
}

// AggregateFromSnapshot plans from the snapshot's effective position to
// goal.
func (p *Planner) AggregateFromSnapshot(snap *farm.Snapshot, goal catalog.Position) Report {
	start, ok := p.EffectiveStart(snap)
	if !ok {
		p.log.Printf("aggregate: farm %d has no island/level", farmID(snap))
		return Report{To: goal}
	}
	return p.AggregateRange(start, goal)
}

// AggregateFrom plans from an explicit position. When the snapshot is at
// that same position with a construction underway, the plot being built
// is skipped.
func (p *Planner) AggregateFrom(snap *farm.Snapshot, from, goal catalog.Position) Report {
	if snap.Building() && snap.HasPosition() && snap.Position() == from {
		from = p.advance(from, snap.Construction.TargetLevel)
	}
	return p.AggregateRange(from, goal)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
