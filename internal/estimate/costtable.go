package estimate

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// BrandCosts lists the models a brand override applies to and the override costs.
type BrandCosts struct {
	Models      []string       `yaml:"models"`
	DamageCosts map[string]int `yaml:"damage_costs"`
}

// CostTableFile is the on-disk layout accepted by LoadCostTable.
type CostTableFile struct {
	Brands       map[string]BrandCosts `yaml:"brands"`
	DefaultCosts map[string]int        `yaml:"default_costs"`
}

type brandEntry struct {
	models map[string]struct{}
	costs  map[Category]int
}

// CostTable resolves base repair costs. It is immutable once built and safe
// for concurrent use.
type CostTable struct {
	brands   map[string]brandEntry
	defaults map[Category]int
}

// NewCostTable validates and indexes the given tables. The default table
// defines the set of known categories.
func NewCostTable(file CostTableFile) (*CostTable, error) {
	if len(file.DefaultCosts) == 0 {
		return nil, errors.New("cost table: default costs are empty")
	}

	t := &CostTable{
		brands:   make(map[string]brandEntry, len(file.Brands)),
		defaults: make(map[Category]int, len(file.DefaultCosts)),
	}
	for label, cost := range file.DefaultCosts {
		if cost < 0 {
			return nil, fmt.Errorf("cost table: negative default cost for %q", label)
		}
		t.defaults[NormalizeCategory(label)] = cost
	}

	for brand, data := range file.Brands {
		entry := brandEntry{
			models: make(map[string]struct{}, len(data.Models)),
			costs:  make(map[Category]int, len(data.DamageCosts)),
		}
		for _, model := range data.Models {
			entry.models[normalizeName(model)] = struct{}{}
		}
		for label, cost := range data.DamageCosts {
			category := NormalizeCategory(label)
			if _, ok := t.defaults[category]; !ok {
				return nil, fmt.Errorf("cost table: brand %q prices unknown category %q", brand, label)
			}
			if cost < 0 {
				return nil, fmt.Errorf("cost table: negative cost for %q/%q", brand, label)
			}
			entry.costs[category] = cost
		}
		t.brands[normalizeName(brand)] = entry
	}
	return t, nil
}

// LoadCostTable reads a YAML cost table from disk.
func LoadCostTable(path string) (*CostTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost table: %w", err)
	}
	var file CostTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cost table: %w", err)
	}
	return NewCostTable(file)
}

// DefaultCostTable returns the built-in brand and default tables.
func DefaultCostTable() *CostTable {
	t, err := NewCostTable(defaultCostTableFile)
	if err != nil {
		panic(err)
	}
	return t
}

// Known reports whether the category can be priced.
func (t *CostTable) Known(c Category) bool {
	_, ok := t.defaults[c]
	return ok
}

// Lookup returns the base cost for a category. A brand override is used only
// when both brand and model are known; otherwise the default applies. Callers
// must check Known first: unknown categories resolve to 0.
func (t *CostTable) Lookup(v Vehicle, c Category) int {
	if entry, ok := t.brands[v.Brand]; ok {
		if _, listed := entry.models[v.Model]; listed {
			if cost, found := entry.costs[c]; found {
				return cost
			}
		}
	}
	return t.defaults[c]
}

// Categories lists the known categories in lexical order.
func (t *CostTable) Categories() []Category {
	out := make([]Category, 0, len(t.defaults))
	for c := range t.defaults {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Catalog lists the known brands with their sorted models.
func (t *CostTable) Catalog() map[string][]string {
	out := make(map[string][]string, len(t.brands))
	for brand, entry := range t.brands {
		models := make([]string, 0, len(entry.models))
		for m := range entry.models {
			models = append(models, m)
		}
		sort.Strings(models)
		out[brand] = models
	}
	return out
}

var defaultCostTableFile = CostTableFile{
	Brands: map[string]BrandCosts{
		"toyota": {
			Models: []string{"innova", "corolla", "hilux", "rav4", "fortuner"},
			DamageCosts: map[string]int{
				"window_broken": 5000, "scratch": 2000, "dent": 3500, "headlight_broken": 3000,
				"flat_tire": 1500, "mirror_broken": 2800, "bumper_dent": 5000, "totaled": 100000,
			},
		},
		"honda": {
			Models: []string{"civic", "crv", "city", "wr-v", "accord"},
			DamageCosts: map[string]int{
				"window_broken": 4500, "scratch": 1800, "dent": 3200, "headlight_broken": 2900,
				"flat_tire": 1400, "mirror_broken": 2600, "bumper_dent": 4800, "totaled": 95000,
			},
		},
		"suzuki": {
			Models: []string{"swift", "cultus", "ertiga", "wagon_r", "ciaz"},
			DamageCosts: map[string]int{
				"window_broken": 4200, "scratch": 1700, "dent": 3000, "headlight_broken": 2700,
				"flat_tire": 1300, "mirror_broken": 2500, "bumper_dent": 4600, "totaled": 90000,
			},
		},
		"hyundai": {
			Models: []string{"tucson", "elantra", "creta", "sonata", "accent"},
			DamageCosts: map[string]int{
				"window_broken": 4700, "scratch": 1900, "dent": 3300, "headlight_broken": 2800,
				"flat_tire": 1450, "mirror_broken": 2700, "bumper_dent": 4700, "totaled": 97000,
			},
		},
		"mahindra": {
			Models: []string{"scorpio", "bolero", "xuv500", "thar", "marazzo"},
			DamageCosts: map[string]int{
				"window_broken": 4800, "scratch": 2000, "dent": 3400, "headlight_broken": 2900,
				"flat_tire": 1500, "mirror_broken": 2750, "bumper_dent": 4900, "totaled": 98000,
			},
		},
	},
	DefaultCosts: map[string]int{
		"window_broken": 4000, "scratch": 1500, "dent": 3000, "headlight_broken": 2500,
		"flat_tire": 1200, "mirror_broken": 2500, "bumper_dent": 4500, "totaled": 85000,
	},
}
