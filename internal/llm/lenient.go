package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreports/constants"
)

var (
	reNumber    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	reThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
	reRange     = regexp.MustCompile(`(-?\d+(?:[.,]\d+)?)\s*(?:-|–|—|to)\s*(-?\d+(?:[.,]\d+)?)`)
	reUpper     = regexp.MustCompile(`^(?:<|≤|<=|up to|below)\s*(-?\d+(?:[.,]\d+)?)`)
	reLower     = regexp.MustCompile(`^(?:>|≥|>=|above)\s*(-?\d+(?:[.,]\d+)?)`)
)

// dateLayouts are tried in order when a model returns a non-ISO date.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2.1.2006",
	"2-Jan-2006",
	time.RFC3339,
}

// ParseNumber pulls the first numeric value out of a loosely formatted cell
// ("14.2", "1,234", "<0.5", "14,2 g/dL").
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if reThousands.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}
	m := reNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseRange reads a reference range such as "13.5 - 17.5", "<200" or ">40".
// Missing bounds are nil.
func ParseRange(s string) (lo, hi *float64) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m := reRange.FindStringSubmatch(s); m != nil {
		a, okA := ParseNumber(m[1])
		b, okB := ParseNumber(m[2])
		if okA && okB {
			return &a, &b
		}
	}
	if m := reUpper.FindStringSubmatch(s); m != nil {
		if v, ok := ParseNumber(m[1]); ok {
			return nil, &v
		}
	}
	if m := reLower.FindStringSubmatch(s); m != nil {
		if v, ok := ParseNumber(m[1]); ok {
			return &v, nil
		}
	}
	return nil, nil
}

// NormalizeDate converts common date spellings to YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// NormalizeLabJSON
// - Renames known synonyms (tests/results -> biomarkers, date -> report_date)
// - Drops null/empty optionals
// - Coerces string numbers to numbers and splits "reference_range" strings
// - Removes unknown keys and biomarker rows without a name or numeric value
func NormalizeLabJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms
	renamed("tests", "biomarkers")
	renamed("results", "biomarkers")
	renamed("lab", "lab_name")
	renamed("laboratory", "lab_name")
	renamed("date", "report_date")
	renamed("test_date", "report_date")

	// 2) trim scalars, drop null / ""
	for _, k := range []string{"lab_name", "report_date", "report_type"} {
		switch t := m[k].(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		case nil:
			if _, ok := m[k]; ok {
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			}
		default:
			delete(m, k)
			dropped = append(dropped, k+"(type)")
		}
	}

	if v, ok := m["report_date"].(string); ok {
		if d, ok := NormalizeDate(v); ok {
			m["report_date"] = d
		} else {
			delete(m, "report_date")
			dropped = append(dropped, "report_date(format)")
		}
	}
	if v, ok := m["report_type"].(string); ok {
		cat, _ := constants.Canonicalize(v)
		m["report_type"] = string(cat)
	}

	// 3) patient_info: strings only
	switch pi := m["patient_info"].(type) {
	case map[string]any:
		for k, v := range maps.Clone(pi) {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					pi[k] = s
				} else {
					delete(pi, k)
				}
			case float64:
				pi[k] = strconv.FormatFloat(t, 'f', -1, 64)
			default:
				delete(pi, k)
			}
		}
	case nil:
		delete(m, "patient_info")
	default:
		delete(m, "patient_info")
		dropped = append(dropped, "patient_info(type)")
	}

	// 4) biomarkers
	items, _ := m["biomarkers"].([]any)
	kept := make([]any, 0, len(items))
	for i, it := range items {
		row, ok := it.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("biomarkers[%d](type)", i))
			continue
		}
		if clean, ok := normalizeBiomarker(row); ok {
			kept = append(kept, clean)
		} else {
			dropped = append(dropped, fmt.Sprintf("biomarkers[%d](value)", i))
		}
	}
	m["biomarkers"] = kept

	// 5) remove unknown keys
	allowed := map[string]struct{}{
		"lab_name": {}, "report_date": {}, "report_type": {},
		"patient_info": {}, "biomarkers": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func normalizeBiomarker(row map[string]any) (map[string]any, bool) {
	out := make(map[string]any, 6)

	name, _ := row["name"].(string)
	if name == "" {
		name, _ = row["test"].(string)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	out["name"] = name

	v, ok := numberOf(row["value"])
	if !ok {
		v, ok = numberOf(row["result"])
	}
	if !ok {
		return nil, false
	}
	out["value"] = v

	if u, ok := row["unit"].(string); ok && strings.TrimSpace(u) != "" {
		out["unit"] = strings.TrimSpace(u)
	}
	if lo, ok := numberOf(row["reference_min"]); ok {
		out["reference_min"] = lo
	}
	if hi, ok := numberOf(row["reference_max"]); ok {
		out["reference_max"] = hi
	}
	if rr, ok := row["reference_range"].(string); ok {
		lo, hi := ParseRange(rr)
		if _, set := out["reference_min"]; !set && lo != nil {
			out["reference_min"] = *lo
		}
		if _, set := out["reference_max"]; !set && hi != nil {
			out["reference_max"] = *hi
		}
	}
	if f, ok := row["flag"].(string); ok {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f != "" && f != "NULL" && f != "NONE" && f != "NORMAL" {
			out["flag"] = f
		}
	}
	return out, true
}

func numberOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return ParseNumber(t)
	}
	return 0, false
}
