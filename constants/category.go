package constants

import (
	"strings"
)

// Category groups biomarkers in the reference catalog.
type Category string

const (
	CategoryCBC       Category = "CBC"
	CategoryLipid     Category = "LIPID"
	CategoryMetabolic Category = "METABOLIC"
	CategoryLiver     Category = "LIVER"
	CategoryKidney    Category = "KIDNEY"
	CategoryThyroid   Category = "THYROID"
	CategoryVitamin   Category = "VITAMIN"
	CategoryHormone   Category = "HORMONE"
	CategoryOther     Category = "OTHER"
)

// ReportType classifies a whole lab report. It shares its vocabulary with Category.
type ReportType = Category

var allCategories = []Category{
	CategoryCBC,
	CategoryLipid,
	CategoryMetabolic,
	CategoryLiver,
	CategoryKidney,
	CategoryThyroid,
	CategoryVitamin,
	CategoryHormone,
	CategoryOther,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form report type labels coming from models or callers
// onto a known Category. Unknown input yields OTHER, false.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return CategoryOther, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Category{
		"complete blood count":          CategoryCBC,
		"hemogram":                      CategoryCBC,
		"haemogram":                     CategoryCBC,
		"lipid panel":                   CategoryLipid,
		"lipid profile":                 CategoryLipid,
		"cmp":                           CategoryMetabolic,
		"bmp":                           CategoryMetabolic,
		"comprehensive metabolic panel": CategoryMetabolic,
		"basic metabolic panel":         CategoryMetabolic,
		"lft":                           CategoryLiver,
		"liver function test":           CategoryLiver,
		"kft":                           CategoryKidney,
		"rft":                           CategoryKidney,
		"renal":                         CategoryKidney,
		"kidney function test":          CategoryKidney,
		"thyroid panel":                 CategoryThyroid,
		"thyroid profile":               CategoryThyroid,
		"vitamins":                      CategoryVitamin,
		"hormones":                      CategoryHormone,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	// check if it matches any category string
	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return CategoryOther, false
}
