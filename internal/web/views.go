package web

import (
	"bytes"
	"html/template"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/farm"
	"sflcompanion.app/internal/planner"
)

func templateFuncs(p *planner.Planner) template.FuncMap {
	return template.FuncMap{
		"dec":  func(d decimal.Decimal) string { return d.Round(2).String() },
		"pct":  func(d decimal.Decimal) string { return d.Round(1).String() },
		"icon": p.Catalog().IconPath,
	}
}

type resourceView struct {
	Name       string
	Icon       string
	Have       decimal.Decimal
	Required   decimal.Decimal
	Percentage decimal.Decimal
	Shortfall  decimal.Decimal
	Surplus    decimal.Decimal
	Met        bool
}

type nextView struct {
	Island       string
	Level        int
	Actionable   bool
	Ready        bool
	BumpkinLevel int
	Time         string
	Resources    []resourceView
}

func newNextView(cat *catalog.Catalog, n *planner.NextAnalysis) *nextView {
	if n == nil {
		return nil
	}
	v := &nextView{
		Island:       n.Island,
		Level:        n.NextLevel,
		Actionable:   n.Actionable,
		Ready:        n.Ready(),
		BumpkinLevel: n.BumpkinLevel,
		Time:         n.Time,
	}
	for _, r := range n.Resources {
		v.Resources = append(v.Resources, resourceView{
			Name:       r.Name,
			Icon:       cat.IconPath(r.Name),
			Have:       r.Have,
			Required:   r.Required,
			Percentage: r.Percentage,
			Shortfall:  r.Shortfall(),
			Surplus:    r.Surplus(),
			Met:        r.Met(),
		})
	}
	return v
}

// levelCounts marshals as a JSON object whose keys keep ascending
// numeric order.
type levelCounts []levelCount

type levelCount struct {
	Level int
	Count int
}

func (lc levelCounts) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, e := range lc {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strconv.Itoa(e.Level))
		b.WriteString(`":`)
		b.WriteString(strconv.Itoa(e.Count))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

type requirementJSON struct {
	Name          string `json:"name"`
	Needed        string `json:"needed"`
	Shortfall     string `json:"shortfall"`
	ValueOfNeeded string `json:"value_of_needed"`
	SFLValue      string `json:"sfl_value"`
	Icon          string `json:"icon"`
}

type unlockJSON struct {
	Name    string      `json:"name"`
	Total   int         `json:"total"`
	Details levelCounts `json:"details"`
	Type    string      `json:"type"`
	Icon    string      `json:"icon"`
}

type goalJSON struct {
	GoalLevelDisplay     int               `json:"goal_level_display"`
	GoalLandType         string            `json:"goal_land_type"`
	MaxBumpkinLevel      int               `json:"max_bumpkin_level"`
	TotalTimeStr         string            `json:"total_time_str"`
	TotalTimeSeconds     int64             `json:"total_time_seconds"`
	TotalSFLCost         string            `json:"total_sfl_cost"`
	TotalRelativeSFLCost string            `json:"total_relative_sfl_cost"`
	Requirements         []requirementJSON `json:"requirements"`
	Unlocks              struct {
		Summary []unlockJSON `json:"summary"`
	} `json:"unlocks"`
	Warnings []string `json:"warnings,omitempty"`
}

func money(d decimal.Decimal) string { return d.Round(4).String() }

func newGoalJSON(cat *catalog.Catalog, rep planner.Report, val planner.Valuation, warnings []string) goalJSON {
	out := goalJSON{
		GoalLevelDisplay:     rep.To.Level,
		GoalLandType:         rep.To.Island,
		MaxBumpkinLevel:      rep.MaxBumpkinLevel,
		TotalTimeStr:         rep.TotalTime(),
		TotalTimeSeconds:     rep.TotalTimeSeconds,
		TotalSFLCost:         money(val.TotalCost),
		TotalRelativeSFLCost: money(val.ShortfallCost),
		Requirements:         make([]requirementJSON, 0, len(val.Items)),
		Warnings:             append(append([]string(nil), warnings...), rep.Warnings...),
	}
	for _, it := range val.Items {
		out.Requirements = append(out.Requirements, requirementJSON{
			Name:          it.Name,
			Needed:        it.Needed.String(),
			Shortfall:     it.Shortfall.String(),
			ValueOfNeeded: money(it.NeededValue),
			SFLValue:      money(it.ShortfallValue),
			Icon:          cat.IconPath(it.Name),
		})
	}
	out.Unlocks.Summary = make([]unlockJSON, 0, len(rep.Gains))
	for _, g := range rep.Gains {
		u := unlockJSON{Name: g.Name, Total: g.Total, Type: string(g.Kind), Icon: cat.IconPath(g.Name)}
		for _, l := range g.Levels() {
			u.Details = append(u.Details, levelCount{Level: l, Count: g.PerLevel[l]})
		}
		out.Unlocks.Summary = append(out.Unlocks.Summary, u)
	}
	return out
}

type plotCell struct {
	Level int
	X, Y  int
	State string // owned, next or locked
}

// miniMap places the plots of the farm's current island on their grid
// coordinates, shifted so the smallest coordinate is zero.
func miniMap(cat *catalog.Catalog, snap *farm.Snapshot) []plotCell {
	if !snap.HasPosition() {
		return nil
	}
	maxLevel, ok := cat.MaxLevelOn(snap.Island)
	if !ok {
		return nil
	}
	var cells []plotCell
	minX, minY := 0, 0
	for l := 1; l <= maxLevel; l++ {
		co, ok := cat.Coordinate(l)
		if !ok {
			continue
		}
		state := "locked"
		switch {
		case l <= snap.Level:
			state = "owned"
		case l == snap.Level+1:
			state = "next"
		}
		cells = append(cells, plotCell{Level: l, X: co.X, Y: co.Y, State: state})
		minX, minY = min(minX, co.X), min(minY, co.Y)
	}
	for i := range cells {
		cells[i].X -= minX
		cells[i].Y -= minY
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Level < cells[j].Level })
	return cells
}

type constructionView struct {
	TargetLevel int
	ReadyAt     string
	ReadyAtMs   int64
	Remaining   string
	SocketPath  string
}

func newConstructionView(snap *farm.Snapshot, now time.Time) *constructionView {
	if !snap.Building() {
		return nil
	}
	c := snap.Construction
	return &constructionView{
		TargetLevel: c.TargetLevel,
		ReadyAt:     c.ReadyAt.UTC().Format(time.RFC1123),
		ReadyAtMs:   c.ReadyAt.UnixMilli(),
		Remaining:   catalog.FormatSeconds(int64(c.Remaining(now).Seconds())),
		SocketPath:  "/ws/construction/" + strconv.FormatUint(snap.FarmID, 10),
	}
}
