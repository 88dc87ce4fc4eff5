// Package standardize maps raw biomarker labels onto the reference catalog and
// computes abnormality flags.
package standardize

import (
	"strings"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/catalog"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

// Critical thresholds relative to the reference bounds. Fixed for every biomarker.
const (
	criticalLowFactor  = 0.8
	criticalHighFactor = 1.2
)

var slugReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Engine is a pure function set over a Catalog. Safe for concurrent use.
type Engine struct {
	cat *catalog.Catalog
}

func NewEngine(cat *catalog.Catalog) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{cat: cat}
}

// Catalog exposes the underlying reference catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Standardize resolves rawName to a canonical name: canonical key match, then
// alias match, both case-insensitive, else a slug of the raw name. Never fails.
func (e *Engine) Standardize(rawName string) string {
	n := strings.ToLower(strings.TrimSpace(rawName))
	if _, ok := e.cat.Lookup(n); ok {
		return n
	}
	if canonical, ok := e.cat.ResolveAlias(n); ok {
		return canonical
	}
	return slugReplacer.Replace(n)
}

// CategoryOf returns the catalog category, OTHER if unknown.
func (e *Engine) CategoryOf(canonical string) constants.Category {
	if entry, ok := e.cat.Lookup(canonical); ok {
		return entry.Category
	}
	return constants.CategoryOther
}

// ReferenceRangeOf returns the gender-specific range if present and gender is
// supplied, else the default range, else an empty range.
func (e *Engine) ReferenceRangeOf(canonical string, gender constants.Gender) catalog.Range {
	entry, ok := e.cat.Lookup(canonical)
	if !ok {
		return catalog.Range{}
	}
	return entry.RangeFor(gender)
}

// Flag classifies value against its reference range. Explicit bounds override
// the catalog per bound. Returns "" when the value is in range or no bound applies.
func (e *Engine) Flag(canonical string, value float64, explicitMin, explicitMax *float64, gender constants.Gender) constants.Flag {
	lo, hi := explicitMin, explicitMax
	if lo == nil || hi == nil {
		r := e.ReferenceRangeOf(canonical, gender)
		if lo == nil {
			lo = r.Min
		}
		if hi == nil {
			hi = r.Max
		}
	}

	if lo != nil && value < *lo {
		if value < *lo*criticalLowFactor {
			return constants.FlagCriticalLow
		}
		return constants.FlagLow
	}
	if hi != nil && value > *hi {
		if value > *hi*criticalHighFactor {
			return constants.FlagCriticalHigh
		}
		return constants.FlagHigh
	}
	return ""
}

// Apply standardizes one raw candidate. Reference bounds reported on the
// document win over catalog bounds. A flag reported by the model is used only
// when the computed flag is empty.
func (e *Engine) Apply(raw entity.RawBiomarker, gender constants.Gender) entity.Biomarker {
	canonical := e.Standardize(raw.Name)
	out := entity.Biomarker{
		Name:             strings.TrimSpace(raw.Name),
		StandardizedName: canonical,
		Category:         e.CategoryOf(canonical),
		Value:            raw.Value,
		Unit:             strings.TrimSpace(raw.Unit),
		ReferenceMin:     raw.ReferenceMin,
		ReferenceMax:     raw.ReferenceMax,
	}

	r := e.ReferenceRangeOf(canonical, gender)
	if out.ReferenceMin == nil {
		out.ReferenceMin = r.Min
	}
	if out.ReferenceMax == nil {
		out.ReferenceMax = r.Max
	}
	if out.Unit == "" {
		if entry, ok := e.cat.Lookup(canonical); ok {
			out.Unit = entry.Unit
		}
	}

	flag := e.Flag(canonical, raw.Value, raw.ReferenceMin, raw.ReferenceMax, gender)
	if flag == "" {
		if f, ok := constants.ParseFlag(raw.Flag); ok {
			flag = f
		}
	}
	if flag != "" {
		out.Flag = &flag
		out.IsAbnormal = true
	}
	return out
}

// ApplyAll standardizes a batch, skipping candidates without a name.
func (e *Engine) ApplyAll(raws []entity.RawBiomarker, gender constants.Gender) []entity.Biomarker {
	out := make([]entity.Biomarker, 0, len(raws))
	for _, r := range raws {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		out = append(out, e.Apply(r, gender))
	}
	return out
}
