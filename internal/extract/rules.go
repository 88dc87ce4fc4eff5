package extract

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/catalog"
	"github.com/joseph-ayodele/labreports/internal/llm"
)

var (
	reValueLine   = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9 ()/%,.'+-]*?)\s*[:=]?\s+([<>]?\s?-?\d+(?:[.,]\d+)?)(?:\s*(.*))?$`)
	reNumericCell = regexp.MustCompile(`^[<>]?\s?-?\d+(?:[.,]\d+)?$`)
	reDateTail    = regexp.MustCompile(`^[-/.:]\d`)
	reRefPrefix   = regexp.MustCompile(`(?i)^(?:ref(?:erence)?(?:\s*range)?|normal(?:\s*range)?|range|bio\.?\s*ref\.?\s*interval)\s*:?\s*`)
	reFlagToken   = regexp.MustCompile(`^(?i:h|l|hh|ll|high|low|critical)$`)
	reLetter      = regexp.MustCompile(`[A-Za-zµμ%]`)
)

// labels that precede numbers but are never measurements
var nonMeasurementPrefixes = []string{
	"date", "page", "patient", "age", "sex", "gender", "phone", "tel", "mobile",
	"id", "dob", "report", "sample", "collected", "received", "printed", "time",
	"ref", "pin", "uhid", "lab no", "reg", "table", "bill", "order",
}

// RuleParser is a deterministic line parser for "Name value unit (range)"
// rows and " | " joined table rows.
type RuleParser struct {
	cat *catalog.Catalog
}

func NewRuleParser(cat *catalog.Catalog) *RuleParser {
	if cat == nil {
		cat = catalog.Default()
	}
	return &RuleParser{cat: cat}
}

// Parse returns one candidate per distinct name, first occurrence wins.
// Rows are kept only when the name is a known biomarker or carries a unit.
func (p *RuleParser) Parse(text string) llm.LabReportFields {
	out := llm.LabReportFields{Biomarkers: []llm.BiomarkerFields{}}
	seen := map[string]struct{}{}
	counts := map[constants.Category]int{}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var (
			b  llm.BiomarkerFields
			ok bool
		)
		if strings.Contains(line, " | ") {
			b, ok = parseCells(strings.Split(line, " | "))
		} else {
			b, ok = parseLine(line)
		}
		if !ok || !plausibleName(b.Name) {
			continue
		}
		canonical, known := p.cat.Resolve(b.Name)
		if !known && b.Unit == "" {
			continue
		}
		key := strings.ToLower(b.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if known {
			if e, ok := p.cat.Lookup(canonical); ok {
				counts[e.Category]++
			}
		}
		out.Biomarkers = append(out.Biomarkers, b)
	}

	out.ReportType = string(dominantCategory(counts))
	return out
}

func parseLine(line string) (llm.BiomarkerFields, bool) {
	m := reValueLine.FindStringSubmatch(line)
	if m == nil {
		return llm.BiomarkerFields{}, false
	}
	rest := strings.TrimSpace(m[3])
	if reDateTail.MatchString(rest) {
		return llm.BiomarkerFields{}, false
	}
	v, ok := llm.ParseNumber(m[2])
	if !ok {
		return llm.BiomarkerFields{}, false
	}
	b := llm.BiomarkerFields{Name: strings.TrimSpace(m[1]), Value: v}

	fields := strings.Fields(rest)
	if len(fields) > 0 && isUnit(fields[0]) {
		b.Unit = fields[0]
		fields = fields[1:]
	}
	if len(fields) > 0 && reFlagToken.MatchString(fields[0]) {
		b.Flag = strings.ToUpper(fields[0])
		fields = fields[1:]
	}
	b.ReferenceMin, b.ReferenceMax = parseRef(strings.Join(fields, " "))
	return b, true
}

func parseCells(cells []string) (llm.BiomarkerFields, bool) {
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if len(cells) < 2 {
		return llm.BiomarkerFields{}, false
	}
	b := llm.BiomarkerFields{Name: cells[0]}
	vi := -1
	for i := 1; i < len(cells); i++ {
		if reNumericCell.MatchString(cells[i]) {
			vi = i
			break
		}
	}
	if vi < 0 {
		return llm.BiomarkerFields{}, false
	}
	b.Value, _ = llm.ParseNumber(cells[vi])
	for _, c := range cells[vi+1:] {
		switch {
		case b.Unit == "" && isUnit(c):
			b.Unit = c
		case b.Flag == "" && reFlagToken.MatchString(c):
			b.Flag = strings.ToUpper(c)
		case b.ReferenceMin == nil && b.ReferenceMax == nil:
			b.ReferenceMin, b.ReferenceMax = parseRef(c)
		}
	}
	return b, true
}

func parseRef(s string) (lo, hi *float64) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = reRefPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return nil, nil
	}
	return llm.ParseRange(s)
}

// isUnit accepts tokens like g/dL, %, mg/dL, 10^3/µL, fL, mIU/L.
func isUnit(tok string) bool {
	if tok == "" || strings.HasPrefix(tok, "(") || reFlagToken.MatchString(tok) {
		return false
	}
	if reNumericCell.MatchString(tok) {
		return false
	}
	if lo, hi := llm.ParseRange(tok); lo != nil && hi != nil {
		return false
	}
	return reLetter.MatchString(tok)
}

func plausibleName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) < 2 || len(n) > 60 || !reLetter.MatchString(n) {
		return false
	}
	for _, p := range nonMeasurementPrefixes {
		if n == p || strings.HasPrefix(n, p+" ") || strings.HasPrefix(n, p+":") {
			return false
		}
	}
	return true
}

func dominantCategory(counts map[constants.Category]int) constants.Category {
	best, bestN := constants.CategoryOther, 0
	for _, c := range constants.AsStringSlice() {
		if n := counts[constants.Category(c)]; n > bestN {
			best, bestN = constants.Category(c), n
		}
	}
	return best
}
