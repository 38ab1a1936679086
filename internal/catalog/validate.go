package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sflcompanion.app/configs"
)

// ViolationError lists every invariant violation found in a catalogue.
type ViolationError struct {
	Problems []string
}

func (e *ViolationError) Error() string {
	if len(e.Problems) == 1 {
		return "catalog violation: " + e.Problems[0]
	}
	return fmt.Sprintf("catalog violations (%d): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

var schemaFiles = map[string]string{
	expansionsFile:  "schemas/expansions.schema.json",
	buildingsFile:   "schemas/buildings.schema.json",
	coordinatesFile: "schemas/plot_coordinates.schema.json",
}

// Validate checks the documents against their schemas and the catalogue
// against its invariants. It returns a *ViolationError listing all
// problems, or nil.
func (c *Catalog) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, doc := range []string{expansionsFile, buildingsFile, coordinatesFile} {
		if err := validateSchema(doc, c.raw[doc]); err != nil {
			add("%s: %v", doc, err)
		}
	}

	if len(c.islands) == 0 {
		add("no islands declared")
	}
	seenIsland := map[string]bool{}
	for _, isl := range c.islands {
		if isl.Name == "" {
			add("island #%d: empty name", isl.Index)
		}
		if seenIsland[isl.Name] {
			add("island %q declared twice", isl.Name)
		}
		seenIsland[isl.Name] = true
		if len(isl.Plots) == 0 {
			add("island %q: no plots", isl.Name)
			continue
		}
		validateIsland(isl, add)
	}

	seenBuilding := map[string]bool{}
	for _, b := range c.buildings {
		if b.Name == "" {
			add("building with empty name")
		}
		if seenBuilding[b.Name] {
			add("building %q declared twice", b.Name)
		}
		seenBuilding[b.Name] = true
		if _, ok := c.islandIndex[b.UnlocksOnIsland]; !ok {
			add("building %q: unknown island %q", b.Name, b.UnlocksOnIsland)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ViolationError{Problems: problems}
}

func validateIsland(isl Island, add func(string, ...any)) {
	var (
		prev       *Plot
		maxBumpkin int
		bumpkinAt  int
	)
	for i := range isl.Plots {
		p := &isl.Plots[i]
		if p.Err != nil {
			add("%v", p.Err)
		}
		if prev != nil {
			switch {
			case p.Level == prev.Level:
				add("%s: level %d declared twice", isl.Name, p.Level)
			case p.Level != prev.Level+1:
				add("%s: gap between levels %d and %d", isl.Name, prev.Level, p.Level)
			}
			kinds := make([]string, 0, len(prev.Nodes))
			for k := range prev.Nodes {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				if p.Nodes[k] < prev.Nodes[k] {
					add("%s %d: %s count drops from %d to %d", isl.Name, p.Level, k, prev.Nodes[k], p.Nodes[k])
				}
			}
		}
		if p.HasRequirements() {
			if p.BumpkinLevel < maxBumpkin {
				add("%s %d: bumpkin level %d below %d required at level %d", isl.Name, p.Level, p.BumpkinLevel, maxBumpkin, bumpkinAt)
			} else {
				maxBumpkin, bumpkinAt = p.BumpkinLevel, p.Level
			}
		}
		prev = p
	}
}

func validateSchema(doc string, raw []byte) error {
	schemaPath := schemaFiles[doc]
	b, err := fs.ReadFile(configs.FS, schemaPath)
	if err != nil {
		return err
	}
	comp := jsonschema.NewCompiler()
	comp.Draft = jsonschema.Draft7
	if err := comp.AddResource(schemaPath, bytes.NewReader(b)); err != nil {
		return err
	}
	sch, err := comp.Compile(schemaPath)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return sch.Validate(v)
}
