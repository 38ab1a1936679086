package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Position names a plot slot; it need not exist in the catalogue.
type Position struct {
	Island string
	Level  int
}

func (p Position) String() string { return fmt.Sprintf("%s-%d", p.Island, p.Level) }

// ParsePosition parses the "<island>-<level>" form used by goal selectors.
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return Position{}, fmt.Errorf("bad position %q: want <island>-<level>", s)
	}
	lvl, err := strconv.Atoi(s[i+1:])
	if err != nil || lvl < 0 {
		return Position{}, fmt.Errorf("bad position %q: level must be a non-negative integer", s)
	}
	return Position{Island: strings.ToLower(s[:i]), Level: lvl}, nil
}

// Compare orders positions by island order then level. ok is false when
// either island is unknown.
func (c *Catalog) Compare(a, b Position) (cmp int, ok bool) {
	ia, okA := c.islandIndex[a.Island]
	ib, okB := c.islandIndex[b.Island]
	if !okA || !okB {
		return 0, false
	}
	switch {
	case ia < ib:
		return -1, true
	case ia > ib:
		return 1, true
	case a.Level < b.Level:
		return -1, true
	case a.Level > b.Level:
		return 1, true
	}
	return 0, true
}

// Next returns the first plot strictly after pos in global order.
func (c *Catalog) Next(pos Position) (Plot, bool) {
	start, ok := c.islandIndex[pos.Island]
	if !ok {
		return Plot{}, false
	}
	for i := start; i < len(c.islands); i++ {
		for _, p := range c.islands[i].Plots {
			if i == start && p.Level <= pos.Level {
				continue
			}
			return p, true
		}
	}
	return Plot{}, false
}

// Prev returns the plot immediately before p in global order. Across an
// island boundary that is the maximum-level plot of the outgoing island.
func (c *Catalog) Prev(p Plot) (Plot, bool) {
	idx, ok := c.islandIndex[p.Island]
	if !ok {
		return Plot{}, false
	}
	plots := c.islands[idx].Plots
	for i := len(plots) - 1; i >= 0; i-- {
		if plots[i].Level < p.Level {
			return plots[i], true
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if n := len(c.islands[i].Plots); n > 0 {
			return c.islands[i].Plots[n-1], true
		}
	}
	return Plot{}, false
}

// Range calls fn for every plot strictly after from up to and including
// to, in global order. It stops early when fn returns false.
func (c *Catalog) Range(from, to Position, fn func(Plot) bool) {
	fi, okF := c.islandIndex[from.Island]
	ti, okT := c.islandIndex[to.Island]
	if !okF || !okT || fi > ti {
		return
	}
	for i := fi; i <= ti; i++ {
		for _, p := range c.islands[i].Plots {
			if i == fi && p.Level <= from.Level {
				continue
			}
			if i == ti && p.Level > to.Level {
				break
			}
			if !fn(p) {
				return
			}
		}
	}
}
