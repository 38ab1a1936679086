package catalog

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// SuggestIsland returns the known island closest to name, or "" when
// nothing is within two edits.
func (c *Catalog) SuggestIsland(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	best, bestDist := "", 3
	for _, isl := range c.islands {
		if d := levenshtein.ComputeDistance(name, isl.Name); d < bestDist {
			best, bestDist = isl.Name, d
		}
	}
	return best
}

var specialIcons = map[string]string{
	KeySFL:   "images/resources/flower.webp",
	KeyCoins: "images/resources/coins.webp",
	"Gem":    "images/resources/gem.webp",
}

// IconPath returns the static image path for an item, node kind or
// building name.
func (c *Catalog) IconPath(name string) string {
	if name == "" {
		return "images/resources/unknown.webp"
	}
	if p, ok := specialIcons[name]; ok {
		return p
	}
	file := strings.ReplaceAll(strings.ToLower(name), " ", "_") + ".webp"
	if c.nodeKinds[name] {
		return "images/nodes/" + file
	}
	for _, b := range c.buildings {
		if b.Name == name {
			return "images/buildings/" + file
		}
	}
	return "images/resources/" + file
}
