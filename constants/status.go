package constants

// WorkflowStatus is the caller-visible status of an extraction workflow and of
// the lab_report row it produces. Store these exact strings.
type WorkflowStatus string

const (
	StatusProcessing      WorkflowStatus = "processing"
	StatusWaitingPassword WorkflowStatus = "waiting_password"
	StatusWaitingDate     WorkflowStatus = "waiting_date"
	StatusCompleted       WorkflowStatus = "completed"
	StatusFailed          WorkflowStatus = "failed"
)

// WorkflowStatuses holds every status value, used by schema validators.
var WorkflowStatuses = []string{
	string(StatusProcessing),
	string(StatusWaitingPassword),
	string(StatusWaitingDate),
	string(StatusCompleted),
	string(StatusFailed),
}

// Terminal reports whether no further transitions are possible.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Suspended reports whether the workflow is waiting for caller input.
func (s WorkflowStatus) Suspended() bool {
	return s == StatusWaitingPassword || s == StatusWaitingDate
}

// Flag marks a reading outside its reference range.
type Flag string

const (
	FlagLow          Flag = "LOW"
	FlagHigh         Flag = "HIGH"
	FlagCriticalLow  Flag = "CRITICAL_LOW"
	FlagCriticalHigh Flag = "CRITICAL_HIGH"
)

// Flags holds every stored flag value, used by schema validators.
var Flags = []string{string(FlagLow), string(FlagHigh), string(FlagCriticalLow), string(FlagCriticalHigh)}

// ParseFlag accepts model-produced flag strings ("low", "H", "critical high").
func ParseFlag(s string) (Flag, bool) {
	switch normalizeFlag(s) {
	case "LOW", "L":
		return FlagLow, true
	case "HIGH", "H":
		return FlagHigh, true
	case "CRITICAL_LOW", "LL":
		return FlagCriticalLow, true
	case "CRITICAL_HIGH", "HH":
		return FlagCriticalHigh, true
	}
	return "", false
}

// TrendDirection is the coarse direction of a biomarker trend.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendDirections holds every direction value, used by schema validators.
var TrendDirections = []string{string(TrendIncreasing), string(TrendDecreasing), string(TrendStable)}

// Gender selects gender-specific reference ranges when present.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)
