package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"sflcompanion.app/configs"
)

// Reserved requirement keys. Every other key names an inventory item.
const (
	KeyBumpkinLevel = "Bumpkin Level"
	KeyTime         = "Time"
	KeySFL          = "SFL"
	KeyCoins        = "Coins"
)

const (
	expansionsFile  = "expansions.json"
	buildingsFile   = "buildings.json"
	coordinatesFile = "plot_coordinates.json"
)

type Catalog struct {
	islands     []Island
	islandIndex map[string]int
	buildings   []Building
	coords      map[int]Coordinate
	nodeKinds   map[string]bool

	// raw documents, kept for schema validation and digests.
	raw     map[string][]byte
	Digests map[string]string
}

type Island struct {
	Name  string
	Index int
	Plots []Plot // ascending level
}

func (i Island) MinLevel() int { return i.Plots[0].Level }
func (i Island) MaxLevel() int { return i.Plots[len(i.Plots)-1].Level }

// HasCosts reports whether any plot on the island declares requirements.
func (i Island) HasCosts() bool {
	for _, p := range i.Plots {
		if p.HasRequirements() {
			return true
		}
	}
	return false
}

type Requirement struct {
	Name   string
	Amount decimal.Decimal
}

type Plot struct {
	Island string
	Level  int

	BumpkinLevel int
	Time         string // as declared, "" when absent
	TimeSeconds  int64
	Resources    []Requirement // declaration order, reserved keys excluded

	// Nodes holds cumulative counts present once the plot is reached.
	Nodes map[string]int

	declared int   // number of requirement keys in the source row
	Err      error // decode defect; set plots are skipped by the planner
}

func (p Plot) Position() Position { return Position{Island: p.Island, Level: p.Level} }

// HasRequirements is false for carry-over plots inherited at island boundaries.
func (p Plot) HasRequirements() bool { return p.declared > 0 }

type Building struct {
	Name            string `json:"name"`
	UnlocksAtLevel  int    `json:"unlocksAtLevel"`
	UnlocksOnIsland string `json:"unlocksOnIsland"`
	Enabled         bool   `json:"enabled"`
}

type Coordinate struct {
	Level int `json:"level"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

type islandDoc struct {
	Name  string    `json:"name"`
	Plots []plotDoc `json:"plots"`
}

type plotDoc struct {
	Level        int             `json:"level"`
	Requirements requirementsDoc `json:"requirements"`
	Nodes        map[string]int  `json:"nodes"`
}

// Load reads, decodes and validates the catalogue from dir.
func Load(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadEmbedded loads the catalogue compiled into the binary.
func LoadEmbedded() (*Catalog, error) {
	return LoadFS(configs.FS)
}

// LoadFS decodes the catalogue from fsys and runs Validate on it.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	c, err := Decode(fsys)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode parses the catalogue documents without checking invariants.
// Per-plot parse failures are recorded on Plot.Err instead of failing.
func Decode(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{
		islandIndex: map[string]int{},
		coords:      map[int]Coordinate{},
		nodeKinds:   map[string]bool{},
		raw:         map[string][]byte{},
		Digests:     map[string]string{},
	}
	for _, name := range []string{expansionsFile, buildingsFile, coordinatesFile} {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		c.raw[name] = b
		c.Digests[name] = sha256Hex(b)
	}

	var exp struct {
		Islands []islandDoc `json:"islands"`
	}
	if err := json.Unmarshal(c.raw[expansionsFile], &exp); err != nil {
		return nil, fmt.Errorf("%s: %w", expansionsFile, err)
	}
	for i, doc := range exp.Islands {
		isl := Island{Name: doc.Name, Index: i, Plots: make([]Plot, 0, len(doc.Plots))}
		for _, pd := range doc.Plots {
			isl.Plots = append(isl.Plots, buildPlot(doc.Name, pd))
			for k := range pd.Nodes {
				c.nodeKinds[k] = true
			}
		}
		sort.SliceStable(isl.Plots, func(a, b int) bool { return isl.Plots[a].Level < isl.Plots[b].Level })
		if _, dup := c.islandIndex[doc.Name]; !dup {
			c.islandIndex[doc.Name] = i
		}
		c.islands = append(c.islands, isl)
	}

	if err := json.Unmarshal(c.raw[buildingsFile], &c.buildings); err != nil {
		return nil, fmt.Errorf("%s: %w", buildingsFile, err)
	}

	var coords []Coordinate
	if err := json.Unmarshal(c.raw[coordinatesFile], &coords); err != nil {
		return nil, fmt.Errorf("%s: %w", coordinatesFile, err)
	}
	for _, co := range coords {
		c.coords[co.Level] = co
	}
	return c, nil
}

func buildPlot(island string, pd plotDoc) Plot {
	p := Plot{
		Island:   island,
		Level:    pd.Level,
		Nodes:    pd.Nodes,
		declared: len(pd.Requirements),
	}
	if p.Nodes == nil {
		p.Nodes = map[string]int{}
	}
	for _, e := range pd.Requirements {
		switch e.Key {
		case KeyBumpkinLevel:
			var lvl int
			if err := json.Unmarshal(e.Raw, &lvl); err != nil {
				p.Err = fmt.Errorf("%s %d: bad %q: %w", island, pd.Level, KeyBumpkinLevel, err)
				continue
			}
			p.BumpkinLevel = lvl
		case KeyTime:
			var s string
			if err := json.Unmarshal(e.Raw, &s); err != nil {
				p.Err = fmt.Errorf("%s %d: bad %q: %w", island, pd.Level, KeyTime, err)
				continue
			}
			p.Time = s
			secs, err := ParseTime(s)
			if err != nil {
				p.Err = fmt.Errorf("%s %d: %w", island, pd.Level, err)
				continue
			}
			p.TimeSeconds = secs
		default:
			amt, err := decimal.NewFromString(string(e.Raw))
			if err != nil {
				p.Err = fmt.Errorf("%s %d: bad amount for %q: %w", island, pd.Level, e.Key, err)
				continue
			}
			if amt.IsNegative() {
				p.Err = fmt.Errorf("%s %d: negative amount for %q", island, pd.Level, e.Key)
				continue
			}
			p.Resources = append(p.Resources, Requirement{Name: e.Key, Amount: amt})
		}
	}
	return p
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Islands returns the islands in canonical order. The slice is shared
// and must not be modified.
func (c *Catalog) Islands() []Island { return c.islands }

func (c *Catalog) IslandNames() []string {
	out := make([]string, len(c.islands))
	for i, isl := range c.islands {
		out[i] = isl.Name
	}
	return out
}

func (c *Catalog) Island(name string) (Island, bool) {
	i, ok := c.islandIndex[name]
	if !ok {
		return Island{}, false
	}
	return c.islands[i], true
}

func (c *Catalog) Plot(island string, level int) (Plot, bool) {
	isl, ok := c.Island(island)
	if !ok {
		return Plot{}, false
	}
	i := sort.Search(len(isl.Plots), func(i int) bool { return isl.Plots[i].Level >= level })
	if i < len(isl.Plots) && isl.Plots[i].Level == level {
		return isl.Plots[i], true
	}
	return Plot{}, false
}

// PlotsOn returns the plots of an island in level order, or nil.
func (c *Catalog) PlotsOn(island string) []Plot {
	isl, ok := c.Island(island)
	if !ok {
		return nil
	}
	return isl.Plots
}

func (c *Catalog) MaxLevelOn(island string) (int, bool) {
	isl, ok := c.Island(island)
	if !ok || len(isl.Plots) == 0 {
		return 0, false
	}
	return isl.MaxLevel(), true
}

// BuildingsUnlockedAt lists the enabled buildings unlocking at exactly
// (island, level), in declaration order.
func (c *Catalog) BuildingsUnlockedAt(island string, level int) []string {
	var out []string
	for _, b := range c.buildings {
		if b.Enabled && b.UnlocksOnIsland == island && b.UnlocksAtLevel == level {
			out = append(out, b.Name)
		}
	}
	return out
}

func (c *Catalog) Buildings() []Building { return c.buildings }

func (c *Catalog) Coordinate(level int) (Coordinate, bool) {
	co, ok := c.coords[level]
	return co, ok
}
