package constants

import "strings"

func normalizeFlag(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// ParseGender maps loose input ("M", "Female") onto a Gender. Empty or unknown
// input returns "" so callers fall back to default ranges.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man":
		return GenderMale
	case "f", "female", "woman":
		return GenderFemale
	}
	return ""
}
