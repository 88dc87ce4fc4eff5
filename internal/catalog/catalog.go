// Package catalog holds the reference vocabulary of canonical biomarkers:
// identity, category, default unit, aliases and gender-aware reference ranges.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/labreports/constants"
)

//go:embed biomarkers.yaml
var defaultYAML []byte

// Range is a closed reference interval. Either bound may be absent.
type Range struct {
	Min *float64
	Max *float64
}

// Known reports whether both bounds are present.
func (r Range) Known() bool {
	return r.Min != nil && r.Max != nil
}

// Entry describes one canonical biomarker.
type Entry struct {
	Name     string
	Category constants.Category
	Unit     string
	Aliases  []string
	Ranges   map[string]Range // keyed by "male", "female", "default"
}

// Catalog is an immutable lookup table. Safe for concurrent use.
type Catalog struct {
	entries map[string]*Entry
	aliases map[string]string // lowercased alias -> canonical name
	names   []string
}

type fileEntry struct {
	Category string               `yaml:"category"`
	Unit     string               `yaml:"unit"`
	Aliases  []string             `yaml:"aliases"`
	Ranges   map[string][]float64 `yaml:"ranges"`
}

type fileLayout struct {
	Biomarkers map[string]fileEntry `yaml:"biomarkers"`
}

// Default returns the embedded catalog. It panics if the embedded data is invalid,
// which can only happen on a broken build.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded biomarkers.yaml: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML in the biomarkers.yaml layout.
func Parse(data []byte) (*Catalog, error) {
	var raw fileLayout
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(raw.Biomarkers) == 0 {
		return nil, fmt.Errorf("catalog has no biomarkers")
	}

	c := &Catalog{
		entries: make(map[string]*Entry, len(raw.Biomarkers)),
		aliases: make(map[string]string),
	}
	for name := range raw.Biomarkers {
		c.names = append(c.names, strings.ToLower(strings.TrimSpace(name)))
	}
	sort.Strings(c.names)

	for name, fe := range raw.Biomarkers {
		key := strings.ToLower(strings.TrimSpace(name))
		cat, ok := constants.Canonicalize(fe.Category)
		if !ok {
			return nil, fmt.Errorf("biomarker %q: unknown category %q", name, fe.Category)
		}
		e := &Entry{
			Name:     key,
			Category: cat,
			Unit:     fe.Unit,
			Aliases:  fe.Aliases,
			Ranges:   make(map[string]Range, len(fe.Ranges)),
		}
		for g, bounds := range fe.Ranges {
			if len(bounds) != 2 {
				return nil, fmt.Errorf("biomarker %q: range %q must have two bounds", name, g)
			}
			lo, hi := bounds[0], bounds[1]
			e.Ranges[strings.ToLower(g)] = Range{Min: &lo, Max: &hi}
		}
		c.entries[key] = e
	}

	// sorted walk so a duplicated alias always resolves to the same entry
	for _, name := range c.names {
		for _, a := range c.entries[name].Aliases {
			k := strings.ToLower(strings.TrimSpace(a))
			if _, taken := c.aliases[k]; !taken {
				c.aliases[k] = name
			}
		}
	}
	return c, nil
}

// Lookup returns the entry for a canonical name.
func (c *Catalog) Lookup(canonical string) (*Entry, bool) {
	e, ok := c.entries[strings.ToLower(strings.TrimSpace(canonical))]
	return e, ok
}

// ResolveAlias returns the canonical name whose alias list contains name,
// compared case-insensitively.
func (c *Catalog) ResolveAlias(name string) (string, bool) {
	n, ok := c.aliases[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// Resolve matches name against canonical keys, then aliases.
func (c *Catalog) Resolve(name string) (string, bool) {
	if e, ok := c.Lookup(name); ok {
		return e.Name, true
	}
	return c.ResolveAlias(name)
}

// Names returns canonical names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// ByCategory returns the entries of one category sorted by name.
func (c *Catalog) ByCategory(cat constants.Category) []*Entry {
	var out []*Entry
	for _, n := range c.names {
		if e := c.entries[n]; e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

// RangeFor returns the gender-specific range when one exists for gender,
// else the default range, else an empty Range.
func (e *Entry) RangeFor(gender constants.Gender) Range {
	if gender != "" {
		if r, ok := e.Ranges[string(gender)]; ok {
			return r
		}
	}
	if r, ok := e.Ranges["default"]; ok {
		return r
	}
	return Range{}
}
