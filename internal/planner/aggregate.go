package planner

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
)

type GainKind string

const (
	GainNode     GainKind = "node"
	GainBuilding GainKind = "building"
)

type Gain struct {
	Name     string
	Kind     GainKind
	Total    int
	PerLevel map[int]int
}

// Levels returns the keys of PerLevel in ascending order.
func (g Gain) Levels() []int {
	out := make([]int, 0, len(g.PerLevel))
	for l := range g.PerLevel {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

type Report struct {
	From, To catalog.Position

	// Requirements excludes Bumpkin Level and Time.
	Requirements     map[string]decimal.Decimal
	MaxBumpkinLevel  int
	TotalTimeSeconds int64
	Gains            []Gain // sorted by name

	// Plots counts the plots walked, carry-over plots included.
	Plots    int
	Warnings []string
}

func (r Report) Empty() bool { return r.Plots == 0 }

func (r Report) TotalTime() string { return catalog.FormatSeconds(r.TotalTimeSeconds) }

// RequirementNames returns the requirement keys sorted by name.
func (r Report) RequirementNames() []string { return sortedKeys(r.Requirements) }

// AggregateRange sums requirements and collects gains for every plot after
// from up to and including to. The report is empty when to is not a plot
// in the catalogue or is not strictly after from.
func (p *Planner) AggregateRange(from, to catalog.Position) Report {
	rep := Report{From: from, To: to, Requirements: map[string]decimal.Decimal{}}

	if _, ok := p.cat.Plot(to.Island, to.Level); !ok {
		p.log.Printf("aggregate: goal %s is not a plot", to)
		return rep
	}
	if c, ok := p.cat.Compare(from, to); !ok || c >= 0 {
		p.log.Printf("aggregate: goal %s is not after %s", to, from)
		return rep
	}

	gains := map[string]*Gain{}
	addGain := func(name string, kind GainKind, level, n int) {
		g, ok := gains[name]
		if !ok {
			g = &Gain{Name: name, Kind: kind, PerLevel: map[int]int{}}
			gains[name] = g
		}
		g.Total += n
		g.PerLevel[level] += n
	}

	p.cat.Range(from, to, func(plot catalog.Plot) bool {
		if plot.Err != nil {
			p.log.Printf("aggregate: skipping defective plot: %v", plot.Err)
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("plot %s skipped: %v", plot.Position(), plot.Err))
			return true
		}
		rep.Plots++

		if plot.HasRequirements() {
			for _, req := range plot.Resources {
				rep.Requirements[req.Name] = rep.Requirements[req.Name].Add(req.Amount)
			}
			if plot.BumpkinLevel > rep.MaxBumpkinLevel {
				rep.MaxBumpkinLevel = plot.BumpkinLevel
			}
			rep.TotalTimeSeconds += plot.TimeSeconds
		}

		var before map[string]int
		if prev, ok := p.cat.Prev(plot); ok {
			before = prev.Nodes
		}
		for kind, n := range plot.Nodes {
			if d := n - before[kind]; d > 0 {
				addGain(kind, GainNode, plot.Level, d)
			}
		}
		for _, b := range p.cat.BuildingsUnlockedAt(plot.Island, plot.Level) {
			addGain(b, GainBuilding, plot.Level, 1)
		}
		return true
	})

	rep.Gains = make([]Gain, 0, len(gains))
	for _, g := range gains {
		rep.Gains = append(rep.Gains, *g)
	}
	sort.Slice(rep.Gains, func(i, j int) bool { return rep.Gains[i].Name < rep.Gains[j].Name })
	return rep
}
