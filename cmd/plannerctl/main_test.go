package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sflcompanion.app/internal/persistence/respcache"
)

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestValidate(t *testing.T) {
	code, out, errOut := runCmd(t, "validate")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "ok: 4 islands") || !strings.Contains(out, "expansions.json") {
		t.Fatalf("output:\n%s", out)
	}

	code, _, errOut = runCmd(t, "validate", "-catalog", t.TempDir())
	if code != 1 || errOut == "" {
		t.Fatalf("empty dir must fail: exit %d %q", code, errOut)
	}
}

func TestPlanOffline(t *testing.T) {
	code, out, errOut := runCmd(t, "plan", "-from", "basic-3", "-to", "basic-7")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"basic-3 -> basic-7: 4 plots, bumpkin level 5, 31m",
		"Crop Plot +27 (node) L4:9 L5:8 L6:8 L7:2",
		"Deli +1 (building)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	code, out, _ = runCmd(t, "plan", "-json", "-from", "basic-3", "-to", "basic-7")
	if code != 0 {
		t.Fatalf("json exit %d", code)
	}
	var got planOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Requirements["Coins"] != "60.25" || got.Requirements["Wood"] != "8" || got.Plots != 4 {
		t.Fatalf("json: %+v", got)
	}
}

func TestPlanUsageErrors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"plan", "-from", "basic-3"}, "missing -to"},
		{[]string{"plan", "-to", "basic-7"}, "need -from or -farm"},
		{[]string{"plan", "-from", "basic-3", "-to", "petl-5"}, `did you mean "petal"`},
		{[]string{"plan", "-from", "basic-3", "-to", "basic-99"}, "has no level 99"},
		{[]string{"plan", "-from", "petal-5", "-to", "basic-7"}, "must come after"},
		{[]string{"plan", "-farm", "abc", "-to", "basic-7"}, "-farm"},
		{[]string{"frobnicate"}, "unknown command"},
		{[]string{"cache", "shrink"}, "usage"},
	}
	for _, tc := range cases {
		code, _, errOut := runCmd(t, tc.args...)
		if code != 2 || !strings.Contains(errOut, tc.want) {
			t.Fatalf("%v: exit %d stderr %q, want %q", tc.args, code, errOut, tc.want)
		}
	}
}

func TestGoalsAt(t *testing.T) {
	code, out, errOut := runCmd(t, "goals", "-at", "basic-3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "next: basic-4") || !strings.Contains(out, "basic: 4 5 6") {
		t.Fatalf("output:\n%s", out)
	}

	code, out, _ = runCmd(t, "goals", "-at", "petal-18")
	if code != 0 || !strings.Contains(out, "petal: 19 20") {
		t.Fatalf("petal-18: exit %d\n%s", code, out)
	}
}

func TestCachePurgeAndStats(t *testing.T) {
	dir := t.TempDir()
	store, err := respcache.OpenSQLite(filepath.Join(dir, "respcache.sqlite"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), "https://example.test/farms/1", []byte(`{"farm":{}}`)); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	cfg := filepath.Join(dir, "missing.yaml")
	code, out, errOut := runCmd(t, "cache", "stats", "-config", cfg, "-data", dir)
	if code != 0 || !strings.Contains(out, "backend=sqlite entries=1") {
		t.Fatalf("stats: exit %d %q %q", code, out, errOut)
	}
	code, out, _ = runCmd(t, "cache", "purge", "-config", cfg, "-data", dir)
	if code != 0 || !strings.Contains(out, "purged 1 entries") {
		t.Fatalf("purge: exit %d %q", code, out)
	}
	code, out, _ = runCmd(t, "cache", "stats", "-config", cfg, "-data", dir)
	if code != 0 || !strings.Contains(out, "entries=0") {
		t.Fatalf("stats after purge: %q", out)
	}
}
