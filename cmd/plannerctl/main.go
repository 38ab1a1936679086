// Command plannerctl validates catalogue data, plans expansions offline
// or against a live farm, and maintains the response cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/config"
	"sflcompanion.app/internal/farm"
	"sflcompanion.app/internal/persistence/respcache"
	"sflcompanion.app/internal/planner"
	"sflcompanion.app/internal/upstream"
)

const usage = `usage: plannerctl <command> [flags]

commands:
  validate            check the catalogue and print its digests
  plan                aggregate requirements between two plots
  goals               list reachable goals for a farm or position
  cache purge|stats   maintain the upstream response cache
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "validate":
		return validateCmd(args[1:], stdout, stderr)
	case "plan":
		return planCmd(args[1:], stdout, stderr)
	case "goals":
		return goalsCmd(args[1:], stdout, stderr)
	case "cache":
		return cacheCmd(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	}
	fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
	return 2
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return catalog.LoadEmbedded()
	}
	return catalog.Load(dir)
}

func validateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("catalog", "", "catalogue directory (default: embedded data)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cat, err := loadCatalog(*dir)
	if err != nil {
		var ve *catalog.ViolationError
		if errors.As(err, &ve) {
			fmt.Fprintln(stderr, ve.Error())
			return 1
		}
		fmt.Fprintln(stderr, "load:", err)
		return 1
	}
	plots := 0
	tw := tabwriter.NewWriter(stdout, 0, 2, 2, ' ', 0)
	for _, isl := range cat.Islands() {
		plots += len(isl.Plots)
		fmt.Fprintf(tw, "%s\t%d..%d\tcosts=%v\n", isl.Name, isl.MinLevel(), isl.MaxLevel(), isl.HasCosts())
	}
	_ = tw.Flush()
	for _, name := range []string{"expansions.json", "buildings.json", "plot_coordinates.json"} {
		fmt.Fprintf(stdout, "sha256 %s %s\n", cat.Digests[name], name)
	}
	fmt.Fprintf(stdout, "ok: %d islands, %d plots, %d buildings\n", len(cat.Islands()), plots, len(cat.Buildings()))
	return 0
}

// parseGoal parses an <island>-<level> flag, printing a suggestion for
// misspelt islands.
func parseGoal(cat *catalog.Catalog, flagName, s string, stderr io.Writer) (catalog.Position, bool) {
	p, err := catalog.ParsePosition(s)
	if err != nil {
		fmt.Fprintf(stderr, "-%s: %v\n", flagName, err)
		return p, false
	}
	if _, ok := cat.Island(p.Island); !ok {
		msg := fmt.Sprintf("-%s: unknown island %q", flagName, p.Island)
		if sug := cat.SuggestIsland(p.Island); sug != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", sug)
		}
		fmt.Fprintln(stderr, msg)
		return p, false
	}
	return p, true
}

type planOutput struct {
	From            string            `json:"from"`
	To              string            `json:"to"`
	Plots           int               `json:"plots"`
	MaxBumpkinLevel int               `json:"max_bumpkin_level"`
	TotalTime       string            `json:"total_time"`
	Requirements    map[string]string `json:"requirements"`
	Shortfall       map[string]string `json:"shortfall,omitempty"`
	TotalSFLCost    string            `json:"total_sfl_cost,omitempty"`
	ShortfallCost   string            `json:"shortfall_sfl_cost,omitempty"`
	Gains           []planner.Gain    `json:"gains"`
	Warnings        []string          `json:"warnings,omitempty"`
}

func planCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("catalog", "", "catalogue directory (default: embedded data)")
	fromFlag := fs.String("from", "", "start position <island>-<level> (default: the farm's position)")
	toFlag := fs.String("to", "", "goal position <island>-<level> (required)")
	farmFlag := fs.String("farm", "", "farm id; values the plan against the live farm and prices")
	cfgPath := fs.String("config", "./configs/server.yaml", "server config (used with -farm)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cat, err := loadCatalog(*dir)
	if err != nil {
		fmt.Fprintln(stderr, "load catalogue:", err)
		return 1
	}
	if *toFlag == "" {
		fmt.Fprintln(stderr, "missing -to")
		return 2
	}
	to, ok := parseGoal(cat, "to", *toFlag, stderr)
	if !ok {
		return 2
	}
	if _, exists := cat.Plot(to.Island, to.Level); !exists {
		fmt.Fprintf(stderr, "-to: %s has no level %d\n", to.Island, to.Level)
		return 2
	}
	if *fromFlag == "" && *farmFlag == "" {
		fmt.Fprintln(stderr, "need -from or -farm")
		return 2
	}

	plan := planner.New(cat, nil)
	var (
		snap   *farm.Snapshot
		prices *farm.PriceBook
		warns  []string
	)
	if *farmFlag != "" {
		id, err := upstream.ParseFarmID(*farmFlag)
		if err != nil {
			fmt.Fprintln(stderr, "-farm:", err)
			return 2
		}
		prov, closeFn, err := newProvider(*cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer closeFn()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if snap, err = prov.Snapshot(ctx, id); err != nil {
			fmt.Fprintln(stderr, "fetch farm:", err)
			return 1
		}
		warns = append(warns, snap.Warnings...)
		if prices, err = prov.Prices(ctx); err != nil {
			warns = append(warns, "prices unavailable: "+err.Error())
		}
	}

	var rep planner.Report
	var from catalog.Position
	if *fromFlag != "" {
		if from, ok = parseGoal(cat, "from", *fromFlag, stderr); !ok {
			return 2
		}
		rep = plan.AggregateFrom(snap, from, to)
	} else {
		if !snap.HasPosition() {
			fmt.Fprintln(stderr, "farm position unknown; pass -from")
			return 1
		}
		from, _ = plan.EffectiveStart(snap)
		rep = plan.AggregateFromSnapshot(snap, to)
	}
	if c, _ := cat.Compare(from, to); c >= 0 {
		fmt.Fprintf(stderr, "goal %s must come after %s\n", to, from)
		return 2
	}

	out := planOutput{
		From:            from.String(),
		To:              to.String(),
		Plots:           rep.Plots,
		MaxBumpkinLevel: rep.MaxBumpkinLevel,
		TotalTime:       rep.TotalTime(),
		Requirements:    map[string]string{},
		Gains:           rep.Gains,
		Warnings:        append(warns, rep.Warnings...),
	}
	for name, n := range rep.Requirements {
		out.Requirements[name] = n.String()
	}
	if snap != nil {
		val := planner.Valuate(rep.Requirements, snap, prices)
		out.Shortfall = map[string]string{}
		for _, it := range val.Items {
			if it.Shortfall.GreaterThan(decimal.Zero) {
				out.Shortfall[it.Name] = it.Shortfall.String()
			}
		}
		out.TotalSFLCost = val.TotalCost.Round(4).String()
		out.ShortfallCost = val.ShortfallCost.Round(4).String()
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(stderr, "encode:", err)
			return 1
		}
		return 0
	}
	printPlan(stdout, rep, out)
	return 0
}

func printPlan(w io.Writer, rep planner.Report, out planOutput) {
	fmt.Fprintf(w, "%s -> %s: %d plots, bumpkin level %d, %s\n", out.From, out.To, out.Plots, out.MaxBumpkinLevel, out.TotalTime)
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "resource\tneeded\tshort")
	for _, name := range rep.RequirementNames() {
		short := "-"
		if s, ok := out.Shortfall[name]; ok {
			short = s
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, out.Requirements[name], short)
	}
	_ = tw.Flush()
	if out.TotalSFLCost != "" {
		fmt.Fprintf(w, "value: %s SFL total, %s SFL short\n", out.TotalSFLCost, out.ShortfallCost)
	}
	if len(rep.Gains) > 0 {
		fmt.Fprintln(w, "unlocks:")
		for _, g := range rep.Gains {
			var per []string
			for _, l := range g.Levels() {
				per = append(per, fmt.Sprintf("L%d:%d", l, g.PerLevel[l]))
			}
			fmt.Fprintf(w, "  %s +%d (%s) %s\n", g.Name, g.Total, g.Kind, strings.Join(per, " "))
		}
	}
	for _, warn := range out.Warnings {
		fmt.Fprintln(w, "warning:", warn)
	}
}

func goalsCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("goals", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("catalog", "", "catalogue directory (default: embedded data)")
	atFlag := fs.String("at", "", "position <island>-<level> to list goals from")
	farmFlag := fs.String("farm", "", "farm id to list goals for")
	cfgPath := fs.String("config", "./configs/server.yaml", "server config (used with -farm)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cat, err := loadCatalog(*dir)
	if err != nil {
		fmt.Fprintln(stderr, "load catalogue:", err)
		return 1
	}
	plan := planner.New(cat, nil)

	var snap *farm.Snapshot
	switch {
	case *atFlag != "":
		at, ok := parseGoal(cat, "at", *atFlag, stderr)
		if !ok {
			return 2
		}
		snap = &farm.Snapshot{Island: at.Island, Level: at.Level}
	case *farmFlag != "":
		id, err := upstream.ParseFarmID(*farmFlag)
		if err != nil {
			fmt.Fprintln(stderr, "-farm:", err)
			return 2
		}
		prov, closeFn, err := newProvider(*cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer closeFn()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if snap, err = prov.Snapshot(ctx, id); err != nil {
			fmt.Fprintln(stderr, "fetch farm:", err)
			return 1
		}
	default:
		fmt.Fprintln(stderr, "need -at or -farm")
		return 2
	}

	if n := plan.AnalyseNext(snap); n != nil && n.Actionable {
		state := "not ready"
		if n.Ready() {
			state = "ready"
		}
		fmt.Fprintf(stdout, "next: %s-%d (%s, bumpkin %d, %s)\n", n.Island, n.NextLevel, state, n.BumpkinLevel, n.Time)
	}
	if snap.Building() {
		fmt.Fprintf(stdout, "building: level %d ready at %s\n", snap.Construction.TargetLevel, snap.Construction.ReadyAt.UTC().Format(time.RFC3339))
	}
	goals := plan.EnumerateGoals(snap)
	if len(goals) == 0 {
		fmt.Fprintln(stdout, "no goals")
		return 0
	}
	for _, g := range goals {
		lv := make([]string, len(g.Levels))
		for i, l := range g.Levels {
			lv[i] = fmt.Sprint(l)
		}
		fmt.Fprintf(stdout, "%s: %s\n", g.Island, strings.Join(lv, " "))
	}
	return 0
}

func cacheCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || (args[0] != "purge" && args[0] != "stats") {
		fmt.Fprintln(stderr, "usage: plannerctl cache purge|stats [-config path] [-data dir]")
		return 2
	}
	fs := flag.NewFlagSet("cache "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides the sqlite path)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := loadConfig(*cfgPath, *dataDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	store, err := respcache.Open(cfg.ResponseCache.Store())
	if err != nil {
		fmt.Fprintln(stderr, "open response cache:", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if args[0] == "purge" {
		n, err := store.Purge(ctx)
		if err != nil {
			fmt.Fprintln(stderr, "purge:", err)
			return 1
		}
		fmt.Fprintf(stdout, "purged %d entries\n", n)
		return 0
	}
	st, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "stats:", err)
		return 1
	}
	fmt.Fprintf(stdout, "backend=%s entries=%d expired=%d stored=%dB raw=%dB\n", st.Backend, st.Entries, st.Expired, st.StoredSize, st.RawSize)
	return 0
}

func loadConfig(path, dataDir string) (config.Config, error) {
	cfg, _, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if dataDir != "" {
		cfg.ResponseCache.Path = filepath.Join(dataDir, "respcache.sqlite")
	}
	return cfg, cfg.Validate()
}

func newProvider(cfgPath string) (*upstream.Provider, func(), error) {
	cfg, err := loadConfig(cfgPath, "")
	if err != nil {
		return nil, nil, err
	}
	store, err := respcache.Open(cfg.ResponseCache.Store())
	if err != nil {
		return nil, nil, fmt.Errorf("open response cache: %w", err)
	}
	client := upstream.NewClient(upstream.Options{
		FarmBaseURL:  cfg.Upstream.FarmBaseURL,
		LandBaseURL:  cfg.Upstream.LandBaseURL,
		PriceURL:     cfg.Upstream.PriceURL,
		UserAgent:    cfg.Upstream.UserAgent,
		RateLimitRPS: cfg.Upstream.RateLimitRPS,
		RateBurst:    cfg.Upstream.RateLimitBurst,
		Cache:        store,
	})
	prov := upstream.NewProvider(client, upstream.ProviderOptions{Timeout: cfg.Upstream.Timeout()})
	return prov, func() { _ = store.Close() }, nil
}
