package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/planner"
	"sflcompanion.app/internal/upstream"
)

func (s *Server) handleGoalRequirements(rw http.ResponseWriter, r *http.Request) {
	cat := s.plan.Catalog()
	id, err := upstream.ParseFarmID(r.PathValue("farm_id"))
	if err != nil {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrInvalidFarmID, "Farm ID must be a positive whole number.", "")
		return
	}
	fromLevel, err := strconv.Atoi(r.PathValue("from_level"))
	if err != nil || fromLevel < 0 {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadRequest, "from_level must be a non-negative integer.", "")
		return
	}
	from := catalog.Position{Island: strings.ToLower(r.PathValue("from_island")), Level: fromLevel}
	if _, ok := cat.Island(from.Island); !ok {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal,
			fmt.Sprintf("Unknown island %q.", from.Island), cat.SuggestIsland(from.Island))
		return
	}

	sel := r.URL.Query().Get("goal_level")
	if sel == "" {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal, "goal_level is required, e.g. petal-8.", "")
		return
	}
	goal, err := catalog.ParsePosition(sel)
	if err != nil {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal, err.Error(), "")
		return
	}
	if _, ok := cat.Island(goal.Island); !ok {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal,
			fmt.Sprintf("Unknown island %q.", goal.Island), cat.SuggestIsland(goal.Island))
		return
	}
	if _, ok := cat.Plot(goal.Island, goal.Level); !ok {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal,
			fmt.Sprintf("%s has no level %d.", goal.Island, goal.Level), "")
		return
	}
	if c, _ := cat.Compare(from, goal); c >= 0 {
		s.writeAPIError(rw, r, http.StatusBadRequest, ErrBadGoal,
			fmt.Sprintf("Goal %s must come after %s.", goal, from), "")
		return
	}

	snap, err := s.snaps.Snapshot(r.Context(), id)
	if err != nil {
		status, code, msg := classify(err)
		s.log.Printf("req=%s farm %d: %v", RequestID(r.Context()), id, err)
		s.writeAPIError(rw, r, status, code, msg, "")
		return
	}
	var warnings []string
	prices, err := s.snaps.Prices(r.Context())
	if err != nil {
		s.log.Printf("req=%s prices: %v", RequestID(r.Context()), err)
		warnings = append(warnings, "Prices are unavailable; SFL values count as zero.")
	}

	rep := s.plan.AggregateFrom(snap, from, goal)
	val := planner.Valuate(rep.Requirements, snap, prices)
	s.plans.Add(1)
	s.writeJSON(rw, r, http.StatusOK, newGoalJSON(cat, rep, val, warnings))
}

type islandJSON struct {
	Name     string `json:"name"`
	MinLevel int    `json:"min_level"`
	MaxLevel int    `json:"max_level"`
	HasCosts bool   `json:"has_costs"`
}

type catalogJSON struct {
	Islands []islandJSON      `json:"islands"`
	Digests map[string]string `json:"digests"`
}

func (s *Server) handleCatalog(rw http.ResponseWriter, r *http.Request) {
	cat := s.plan.Catalog()
	out := catalogJSON{Digests: cat.Digests}
	for _, isl := range cat.Islands() {
		out.Islands = append(out.Islands, islandJSON{
			Name:     isl.Name,
			MinLevel: isl.MinLevel(),
			MaxLevel: isl.MaxLevel(),
			HasCosts: isl.HasCosts(),
		})
	}
	rw.Header().Set("Cache-Control", "public, max-age=300")
	s.writeJSON(rw, r, http.StatusOK, out)
}
