package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/planner"
	"sflcompanion.app/internal/upstream"
)

type indexView struct {
	Islands []string
}

func (s *Server) handleIndex(rw http.ResponseWriter, r *http.Request) {
	s.render(rw, r, http.StatusOK, "index.html", indexView{Islands: s.plan.Catalog().IslandNames()})
}

func (s *Server) handleFarmForm(rw http.ResponseWriter, r *http.Request) {
	id, err := upstream.ParseFarmID(r.FormValue("farm_id"))
	if err != nil {
		http.Redirect(rw, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(rw, r, "/farm/"+strconv.FormatUint(id, 10), http.StatusSeeOther)
}

type errorView struct {
	Status  int
	Code    string
	Message string
	FarmID  string
}

type goalView struct {
	Selected  string
	From      catalog.Position
	Report    planner.Report
	Valuation planner.Valuation
}

type dashboardView struct {
	FarmID       uint64
	Username     string
	Balance      decimal.Decimal
	Coins        decimal.Decimal
	Island       string
	Level        int
	BumpkinLevel int
	FetchedAt    string

	Next         *nextView
	Goals        []planner.IslandGoals
	Goal         *goalView
	Construction *constructionView
	Plots        []plotCell
	Warnings     []string
}

func (s *Server) handleDashboard(rw http.ResponseWriter, r *http.Request) {
	id, err := upstream.ParseFarmID(r.PathValue("farm_id"))
	if err != nil {
		http.Redirect(rw, r, "/", http.StatusSeeOther)
		return
	}
	snap, err := s.snaps.Snapshot(r.Context(), id)
	if err != nil {
		status, code, msg := classify(err)
		s.log.Printf("req=%s farm %d: %v", RequestID(r.Context()), id, err)
		s.render(rw, r, status, "error.html", errorView{Status: status, Code: code, Message: msg, FarmID: strconv.FormatUint(id, 10)})
		return
	}

	cat := s.plan.Catalog()
	v := dashboardView{
		FarmID:       snap.FarmID,
		Username:     snap.Username,
		Balance:      snap.Balance,
		Coins:        snap.Coins,
		Island:       snap.Island,
		Level:        snap.Level,
		BumpkinLevel: snap.BumpkinLevel,
		FetchedAt:    snap.FetchedAt.UTC().Format(time.RFC1123),
		Next:         newNextView(cat, s.plan.AnalyseNext(snap)),
		Goals:        s.plan.EnumerateGoals(snap),
		Construction: newConstructionView(snap, time.Now()),
		Plots:        miniMap(cat, snap),
		Warnings:     append([]string(nil), snap.Warnings...),
	}
	if !snap.HasPosition() {
		v.Warnings = append(v.Warnings, "Island and level are unknown, so no plan can be made.")
	}

	if sel := strings.TrimSpace(r.URL.Query().Get("goal_level")); sel != "" && snap.HasPosition() {
		goal, err := catalog.ParsePosition(sel)
		if err != nil {
			v.Warnings = append(v.Warnings, "Ignoring goal: "+err.Error())
		} else {
			start, _ := s.plan.EffectiveStart(snap)
			rep := s.plan.AggregateFromSnapshot(snap, goal)
			prices, perr := s.snaps.Prices(r.Context())
			if perr != nil {
				v.Warnings = append(v.Warnings, "Prices are unavailable; SFL values count as zero.")
			}
			s.plans.Add(1)
			v.Goal = &goalView{
				Selected:  goal.String(),
				From:      start,
				Report:    rep,
				Valuation: planner.Valuate(rep.Requirements, snap, prices),
			}
			v.Warnings = append(v.Warnings, rep.Warnings...)
		}
	}
	s.render(rw, r, http.StatusOK, "dashboard.html", v)
}
