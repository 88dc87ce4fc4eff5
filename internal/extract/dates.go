package extract

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/labreports/internal/llm"
)

var (
	reDateLabel = regexp.MustCompile(`(?i)\b(?:date|reported|collected|collection|received|sampled)\b`)
	reBirth     = regexp.MustCompile(`(?i)\b(?:birth|dob|d\.o\.b)\b`)

	dateCandidates = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/]\d{2}[-/]\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}[- ][A-Za-z]{3}[- ]\d{4}\b`),
		regexp.MustCompile(`\b[A-Za-z]{3,9}\s+\d{1,2},\s*\d{4}\b`),
	}
)

// FindReportDate returns the first parseable date on a line labelled as a
// report, collection or sample date. Birth dates are ignored.
func FindReportDate(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !reDateLabel.MatchString(line) || reBirth.MatchString(line) {
			continue
		}
		for _, re := range dateCandidates {
			for _, m := range re.FindAllString(line, -1) {
				if d, ok := llm.NormalizeDate(m); ok {
					return d, true
				}
			}
		}
	}
	return "", false
}
