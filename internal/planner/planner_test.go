package planner

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/farm"
)

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	cat, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	return New(cat, nil)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pos(island string, level int) catalog.Position {
	return catalog.Position{Island: island, Level: level}
}

func s1Snapshot() *farm.Snapshot {
	return &farm.Snapshot{
		FarmID:    1,
		Island:    "basic",
		Level:     4,
		Balance:   dec("1000"),
		Coins:     decimal.Zero,
		Inventory: map[string]decimal.Decimal{"Wood": dec("50")},
	}
}

func findResource(t *testing.T, n *NextAnalysis, name string) ResourceProgress {
	t.Helper()
	for _, r := range n.Resources {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("resource %q missing from %+v", name, n.Resources)
	return ResourceProgress{}
}

func findGain(rep Report, name string) (Gain, bool) {
	for _, g := range rep.Gains {
		if g.Name == name {
			return g, true
		}
	}
	return Gain{}, false
}

func assertReq(t *testing.T, rep Report, want map[string]string) {
	t.Helper()
	if len(rep.Requirements) != len(want) {
		t.Fatalf("requirements = %v, want %v", rep.Requirements, want)
	}
	for k, v := range want {
		if got, ok := rep.Requirements[k]; !ok || !got.Equal(dec(v)) {
			t.Fatalf("requirements[%s] = %s, want %s", k, got, v)
		}
	}
}

func TestAnalyseNext_PartiallyOwned(t *testing.T) {
	p := newPlanner(t)
	n := p.AnalyseNext(s1Snapshot())
	if n == nil || !n.Actionable {
		t.Fatalf("expected actionable analysis, got %+v", n)
	}
	if n.NextLevel != 5 || n.Island != "basic" {
		t.Fatalf("next = %s %d", n.Island, n.NextLevel)
	}
	if n.BumpkinLevel != 1 || n.Time != "00:00:05" {
		t.Fatalf("reserved fields: %d %q", n.BumpkinLevel, n.Time)
	}
	if len(n.Resources) != 2 || n.Resources[0].Name != "Coins" || n.Resources[1].Name != "Wood" {
		t.Fatalf("resources: %+v", n.Resources)
	}

	wood := findResource(t, n, "Wood")
	if !wood.Have.Equal(dec("50")) || !wood.Required.Equal(dec("5")) || !wood.Percentage.Equal(dec("100")) {
		t.Fatalf("wood: %+v", wood)
	}
	if !wood.Surplus().Equal(dec("45")) || !wood.Shortfall().IsZero() {
		t.Fatalf("wood surplus/shortfall: %s %s", wood.Surplus(), wood.Shortfall())
	}
	coins := findResource(t, n, "Coins")
	if !coins.Have.IsZero() || !coins.Required.Equal(dec("0.25")) || !coins.Percentage.IsZero() {
		t.Fatalf("coins: %+v", coins)
	}
	if !coins.Shortfall().Equal(dec("0.25")) {
		t.Fatalf("coins shortfall: %s", coins.Shortfall())
	}
	if n.Ready() {
		t.Fatalf("coins are missing, must not be ready")
	}
}

func TestAnalyseNext_SentinelAndNil(t *testing.T) {
	p := newPlanner(t)

	// basic 10 is a carry-over plot.
	n := p.AnalyseNext(&farm.Snapshot{Island: "basic", Level: 9})
	if n == nil || n.Actionable || n.NextLevel != 10 {
		t.Fatalf("carry-over next plot: %+v", n)
	}
	n = p.AnalyseNext(&farm.Snapshot{Island: "volcano", Level: 30})
	if n == nil || n.Actionable {
		t.Fatalf("past the last plot: %+v", n)
	}
	if got := p.AnalyseNext(&farm.Snapshot{FarmID: 7}); got != nil {
		t.Fatalf("no position must yield nil, got %+v", got)
	}
	if got := p.AnalyseNext(nil); got != nil {
		t.Fatalf("nil snapshot must yield nil")
	}
	if got := p.AnalyseNext(&farm.Snapshot{Island: "atlantis", Level: 3}); got != nil {
		t.Fatalf("unknown island must yield nil")
	}
}

func TestAnalyseNext_Idempotent(t *testing.T) {
	p := newPlanner(t)
	a := p.AnalyseNext(s1Snapshot())
	b := p.AnalyseNext(s1Snapshot())
	if a.NextLevel != b.NextLevel || len(a.Resources) != len(b.Resources) {
		t.Fatalf("different outputs: %+v vs %+v", a, b)
	}
	for i := range a.Resources {
		ra, rb := a.Resources[i], b.Resources[i]
		if ra.Name != rb.Name || !ra.Have.Equal(rb.Have) || !ra.Required.Equal(rb.Required) || !ra.Percentage.Equal(rb.Percentage) {
			t.Fatalf("resource %d differs: %+v vs %+v", i, ra, rb)
		}
	}
}

func TestAnalyseNext_PercentageBounds(t *testing.T) {
	p := newPlanner(t)
	for _, have := range []string{"0", "1", "2.5", "4.999", "5", "7", "1000"} {
		s := s1Snapshot()
		s.Inventory["Wood"] = dec(have)
		n := p.AnalyseNext(s)
		wood := findResource(t, n, "Wood")
		h := dec(have)
		switch {
		case h.IsZero():
			if !wood.Percentage.IsZero() {
				t.Fatalf("have 0: %s", wood.Percentage)
			}
		case h.GreaterThanOrEqual(wood.Required):
			if !wood.Percentage.Equal(dec("100")) {
				t.Fatalf("have %s: %s", have, wood.Percentage)
			}
		default:
			if !wood.Percentage.IsPositive() || !wood.Percentage.LessThan(dec("100")) {
				t.Fatalf("have %s: %s not strictly between", have, wood.Percentage)
			}
		}
		if wood.Have.IsNegative() {
			t.Fatalf("have must not be negative")
		}
	}
}

func TestAggregateRange_SingleIsland(t *testing.T) {
	p := newPlanner(t)
	rep := p.AggregateRange(pos("basic", 3), pos("basic", 7))

	assertReq(t, rep, map[string]string{"Wood": "8", "Stone": "6", "Iron": "1", "Coins": "60.25"})
	if rep.MaxBumpkinLevel != 5 {
		t.Fatalf("max bumpkin = %d", rep.MaxBumpkinLevel)
	}
	if rep.TotalTimeSeconds != 5+5+60+1800 {
		t.Fatalf("time = %d", rep.TotalTimeSeconds)
	}
	if rep.TotalTime() != "31m" {
		t.Fatalf("time string = %q", rep.TotalTime())
	}
	if rep.Plots != 4 {
		t.Fatalf("plots = %d", rep.Plots)
	}

	crop, ok := findGain(rep, "Crop Plot")
	if !ok || crop.Kind != GainNode || crop.Total != 27 {
		t.Fatalf("crop plot gain: %+v", crop)
	}
	wantPer := map[int]int{4: 9, 5: 8, 6: 8, 7: 2}
	for l, n := range wantPer {
		if crop.PerLevel[l] != n {
			t.Fatalf("crop plot at %d = %d, want %d", l, crop.PerLevel[l], n)
		}
	}
	if got := crop.Levels(); len(got) != 4 || got[0] != 4 || got[3] != 7 {
		t.Fatalf("levels: %v", got)
	}
	for _, b := range []string{"Hen House", "Bakery", "Deli"} {
		g, ok := findGain(rep, b)
		if !ok || g.Kind != GainBuilding || g.Total != 1 {
			t.Fatalf("building %s: %+v ok=%v", b, g, ok)
		}
	}
	if _, ok := findGain(rep, "Smoothie Shack"); ok {
		t.Fatalf("Smoothie Shack unlocks at 9, outside the range")
	}
	for i := 1; i < len(rep.Gains); i++ {
		if rep.Gains[i-1].Name > rep.Gains[i].Name {
			t.Fatalf("gains not sorted: %s > %s", rep.Gains[i-1].Name, rep.Gains[i].Name)
		}
	}
}

func TestAggregateRange_IslandBoundaryCarryOver(t *testing.T) {
	p := newPlanner(t)
	rep := p.AggregateRange(pos("basic", 9), pos("petal", 5))

	assertReq(t, rep, map[string]string{"Wood": "20"})
	if rep.MaxBumpkinLevel != 11 || rep.TotalTimeSeconds != 60 {
		t.Fatalf("bumpkin=%d time=%d", rep.MaxBumpkinLevel, rep.TotalTimeSeconds)
	}
	// basic 10..23 plus petal 4 and 5.
	if rep.Plots != 16 {
		t.Fatalf("plots = %d", rep.Plots)
	}

	fruit, ok := findGain(rep, "Fruit Patch")
	if !ok || fruit.PerLevel[10] != 2 {
		t.Fatalf("carry-over basic 10 must contribute nodes: %+v", fruit)
	}
	// petal 4 holds fewer nodes than basic 23, so it contributes nothing,
	// while petal 5 gains over petal 4.
	tree, _ := findGain(rep, "Tree")
	if tree.PerLevel[4] != 0 {
		t.Fatalf("clamped deltas must not gain at petal 4: %+v", tree)
	}
	if tree.PerLevel[5] != 2 {
		t.Fatalf("petal 5 tree gain = %d", tree.PerLevel[5])
	}
	for _, g := range rep.Gains {
		if g.Total <= 0 {
			t.Fatalf("non-positive gain %+v", g)
		}
	}
}

func TestAggregateRange_EmptyWhenNotAfter(t *testing.T) {
	p := newPlanner(t)
	cases := []struct {
		from, to catalog.Position
	}{
		{pos("basic", 7), pos("basic", 7)},
		{pos("petal", 5), pos("basic", 9)},
		{pos("basic", 5), pos("basic", 99)},
		{pos("basic", 5), pos("atlantis", 6)},
		{pos("atlantis", 1), pos("basic", 6)},
	}
	for _, tc := range cases {
		rep := p.AggregateRange(tc.from, tc.to)
		if !rep.Empty() || len(rep.Requirements) != 0 || len(rep.Gains) != 0 || rep.TotalTimeSeconds != 0 {
			t.Fatalf("%s -> %s: expected empty report, got %+v", tc.from, tc.to, rep)
		}
	}
}

func TestAggregate_ConstructionInProgress(t *testing.T) {
	p := newPlanner(t)
	snap := s1Snapshot()
	snap.Construction = &farm.Construction{TargetLevel: 5, ReadyAt: time.Now().Add(time.Hour)}

	n := p.AnalyseNext(snap)
	if n == nil || n.NextLevel != 5 {
		t.Fatalf("analyse next still reports basic 5: %+v", n)
	}

	rep := p.AggregateFromSnapshot(snap, pos("basic", 7))
	assertReq(t, rep, map[string]string{"Coins": "60", "Stone": "6", "Iron": "1"})
	if rep.TotalTimeSeconds != 60+1800 {
		t.Fatalf("time = %d", rep.TotalTimeSeconds)
	}
	if _, ok := findGain(rep, "Bakery"); ok {
		t.Fatalf("plot 5 gains belong to the construction")
	}
	if _, ok := findGain(rep, "Deli"); !ok {
		t.Fatalf("Deli at 7 expected")
	}

	viaFrom := p.AggregateFrom(snap, pos("basic", 4), pos("basic", 7))
	assertReq(t, viaFrom, map[string]string{"Coins": "60", "Stone": "6", "Iron": "1"})

	// An explicit start elsewhere ignores the construction.
	other := p.AggregateFrom(snap, pos("basic", 3), pos("basic", 7))
	if other.Plots != 4 {
		t.Fatalf("explicit start must not advance: %d plots", other.Plots)
	}
}

func TestAggregate_ConstructionOmitsExactlyOnePlot(t *testing.T) {
	p := newPlanner(t)
	for _, goal := range []catalog.Position{pos("basic", 9), pos("petal", 8), pos("desert", 6)} {
		plain := s1Snapshot()
		building := s1Snapshot()
		building.Construction = &farm.Construction{TargetLevel: 5}

		a := p.AggregateFromSnapshot(plain, goal)
		b := p.AggregateFromSnapshot(building, goal)
		plot5, _ := p.Catalog().Plot("basic", 5)

		if a.Plots-b.Plots != 1 {
			t.Fatalf("%s: plots %d vs %d", goal, a.Plots, b.Plots)
		}
		if a.TotalTimeSeconds-b.TotalTimeSeconds != plot5.TimeSeconds {
			t.Fatalf("%s: time diff %d", goal, a.TotalTimeSeconds-b.TotalTimeSeconds)
		}
		for _, r := range plot5.Resources {
			diff := a.Requirements[r.Name].Sub(b.Requirements[r.Name])
			if !diff.Equal(r.Amount) {
				t.Fatalf("%s: %s diff %s, want %s", goal, r.Name, diff, r.Amount)
			}
		}
	}
}

func TestAggregateRange_DisabledBuildingSkipped(t *testing.T) {
	p := newPlanner(t)
	rep := p.AggregateRange(pos("desert", 16), pos("desert", 19))
	if _, ok := findGain(rep, "Manor"); ok {
		t.Fatalf("disabled Manor listed")
	}
	if g, ok := findGain(rep, "Greenhouse"); !ok || g.PerLevel[19] != 1 {
		t.Fatalf("Greenhouse gain: %+v", g)
	}
}

func allPlots(p *Planner) []catalog.Plot {
	var out []catalog.Plot
	for _, isl := range p.Catalog().Islands() {
		out = append(out, isl.Plots...)
	}
	return out
}

func TestAggregateRange_MatchesPerPlotSums(t *testing.T) {
	p := newPlanner(t)
	plots := allPlots(p)
	for i := 0; i < len(plots); i += 3 {
		for j := i + 1; j < len(plots); j += 2 {
			rep := p.AggregateRange(plots[i].Position(), plots[j].Position())

			want := map[string]decimal.Decimal{}
			var secs int64
			maxB := 0
			for _, pl := range plots[i+1 : j+1] {
				for _, r := range pl.Resources {
					want[r.Name] = want[r.Name].Add(r.Amount)
				}
				secs += pl.TimeSeconds
				if pl.BumpkinLevel > maxB {
					maxB = pl.BumpkinLevel
				}
			}
			if rep.Plots != j-i {
				t.Fatalf("%s..%s: plots %d want %d", plots[i].Position(), plots[j].Position(), rep.Plots, j-i)
			}
			if rep.TotalTimeSeconds != secs || rep.MaxBumpkinLevel != maxB {
				t.Fatalf("%s..%s: time %d/%d bumpkin %d/%d", plots[i].Position(), plots[j].Position(), rep.TotalTimeSeconds, secs, rep.MaxBumpkinLevel, maxB)
			}
			if len(rep.Requirements) != len(want) {
				t.Fatalf("%s..%s: keys %v want %v", plots[i].Position(), plots[j].Position(), rep.Requirements, want)
			}
			for k, v := range want {
				if !rep.Requirements[k].Equal(v) {
					t.Fatalf("%s..%s: %s = %s want %s", plots[i].Position(), plots[j].Position(), k, rep.Requirements[k], v)
				}
			}
		}
	}
}

func TestAggregateRange_Composes(t *testing.T) {
	p := newPlanner(t)
	plots := allPlots(p)
	for a := 0; a < len(plots); a += 7 {
		for b := a + 1; b < len(plots); b += 5 {
			for c := b + 1; c < len(plots); c += 11 {
				pa, pb, pc := plots[a].Position(), plots[b].Position(), plots[c].Position()
				ab := p.AggregateRange(pa, pb)
				bc := p.AggregateRange(pb, pc)
				ac := p.AggregateRange(pa, pc)

				if ab.Plots+bc.Plots != ac.Plots || ab.TotalTimeSeconds+bc.TotalTimeSeconds != ac.TotalTimeSeconds {
					t.Fatalf("%s/%s/%s: plots or time do not add up", pa, pb, pc)
				}
				maxB := ab.MaxBumpkinLevel
				if bc.MaxBumpkinLevel > maxB {
					maxB = bc.MaxBumpkinLevel
				}
				if maxB != ac.MaxBumpkinLevel {
					t.Fatalf("%s/%s/%s: bumpkin %d vs %d", pa, pb, pc, maxB, ac.MaxBumpkinLevel)
				}
				for k, v := range ac.Requirements {
					if !ab.Requirements[k].Add(bc.Requirements[k]).Equal(v) {
						t.Fatalf("%s/%s/%s: %s does not compose", pa, pb, pc, k)
					}
				}
				for _, g := range ac.Gains {
					ga, _ := findGain(ab, g.Name)
					gb, _ := findGain(bc, g.Name)
					if ga.Total+gb.Total != g.Total {
						t.Fatalf("%s/%s/%s: gain %s %d+%d != %d", pa, pb, pc, g.Name, ga.Total, gb.Total, g.Total)
					}
				}
			}
		}
	}
}

func TestEnumerateGoals(t *testing.T) {
	p := newPlanner(t)

	goals := p.EnumerateGoals(&farm.Snapshot{Island: "petal", Level: 18})
	if len(goals) != 3 || goals[0].Island != "petal" || goals[1].Island != "desert" || goals[2].Island != "volcano" {
		t.Fatalf("goals: %+v", goals)
	}
	if got := goals[0].Levels; len(got) != 2 || got[0] != 19 || got[1] != 20 {
		t.Fatalf("petal levels: %v", got)
	}
	if got := goals[1].Levels; got[0] != 4 || got[len(got)-1] != 25 {
		t.Fatalf("desert levels: %v", got)
	}

	building := &farm.Snapshot{Island: "basic", Level: 4, Construction: &farm.Construction{TargetLevel: 5}}
	goals = p.EnumerateGoals(building)
	if goals[0].Island != "basic" || goals[0].Levels[0] != 6 {
		t.Fatalf("construction must move the start: %+v", goals[0])
	}

	if p.EnumerateGoals(&farm.Snapshot{}) != nil {
		t.Fatalf("no position, no goals")
	}
}

func TestValuate(t *testing.T) {
	reqs := map[string]decimal.Decimal{"Wood": dec("10"), "Stone": dec("5")}
	prices := &farm.PriceBook{Items: map[string]farm.Price{
		"Wood":  {SFL: decimal.NewNullDecimal(dec("0.1"))},
		"Stone": {SFL: decimal.NewNullDecimal(dec("0.2"))},
	}}
	snap := &farm.Snapshot{Inventory: map[string]decimal.Decimal{"Wood": dec("3")}}

	v := Valuate(reqs, snap, prices)
	if !v.TotalCost.Equal(dec("2.0")) {
		t.Fatalf("total = %s", v.TotalCost)
	}
	if !v.ShortfallCost.Equal(dec("1.7")) {
		t.Fatalf("shortfall = %s", v.ShortfallCost)
	}
	if len(v.Items) != 2 || v.Items[0].Name != "Stone" || !v.Items[1].Shortfall.Equal(dec("7")) {
		t.Fatalf("items: %+v", v.Items)
	}

	unpriced := Valuate(map[string]decimal.Decimal{"Obsidian": dec("4")}, nil, nil)
	if !unpriced.TotalCost.IsZero() || !unpriced.Items[0].Shortfall.Equal(dec("4")) {
		t.Fatalf("unpriced: %+v", unpriced)
	}
}

const defectiveExpansions = `{"islands": [{"name": "basic", "plots": [
  {"level": 3, "requirements": {}, "nodes": {"Crop Plot": 1}},
  {"level": 4, "requirements": {"Wood": 5, "Bumpkin Level": 2, "Time": "00:10:00"}, "nodes": {"Crop Plot": 2}},
  {"level": 5, "requirements": {"Wood": 7, "Bumpkin Level": 3, "Time": "ten minutes"}, "nodes": {"Crop Plot": 3}},
  {"level": 6, "requirements": {"Wood": 9, "Bumpkin Level": 4, "Time": "00:10:00"}, "nodes": {"Crop Plot": 5}}
]}]}`

func defectivePlanner(t *testing.T) *Planner {
	t.Helper()
	cat, err := catalog.Decode(fstest.MapFS{
		"expansions.json":       {Data: []byte(defectiveExpansions)},
		"buildings.json":        {Data: []byte(`[]`)},
		"plot_coordinates.json": {Data: []byte(`[]`)},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if plot, _ := cat.Plot("basic", 5); plot.Err == nil {
		t.Fatalf("basic-5 should carry a decode defect")
	}
	return New(cat, nil)
}

func TestAggregateRange_SkipsDefectivePlot(t *testing.T) {
	p := defectivePlanner(t)

	rep := p.AggregateRange(pos("basic", 3), pos("basic", 6))
	if rep.Plots != 2 {
		t.Fatalf("plots = %d, want 2", rep.Plots)
	}
	assertReq(t, rep, map[string]string{"Wood": "14"})
	if rep.MaxBumpkinLevel != 4 || rep.TotalTimeSeconds != 1200 {
		t.Fatalf("bumpkin %d time %d", rep.MaxBumpkinLevel, rep.TotalTimeSeconds)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "basic-5") {
		t.Fatalf("warnings: %q", rep.Warnings)
	}
	g, ok := findGain(rep, "Crop Plot")
	if !ok || g.PerLevel[4] != 1 || g.PerLevel[6] != 2 || g.PerLevel[5] != 0 {
		t.Fatalf("crop plot gain: %+v", g)
	}
}

func TestAnalyseNext_DefectivePlotNotActionable(t *testing.T) {
	p := defectivePlanner(t)

	snap := &farm.Snapshot{FarmID: 9, Island: "basic", Level: 4, Inventory: map[string]decimal.Decimal{"Wood": dec("100")}}
	n := p.AnalyseNext(snap)
	if n == nil {
		t.Fatalf("AnalyseNext returned nil")
	}
	if n.Actionable || n.Ready() || n.NextLevel != 5 || len(n.Resources) != 0 {
		t.Fatalf("defective plot analysis: %+v", n)
	}
}
