// Package workflow runs the lab report extraction state machine. Each run
// re-enters at the checkpointed step and moves forward until it completes,
// fails, or suspends for caller input.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/vision"
)

// Step is a node of the extraction state machine. The value is persisted as
// current_state in checkpoints.
type Step string

const (
	StepReceiveUpload    Step = "receive_upload"
	StepCheckEncryption  Step = "check_encryption"
	StepRequestPassword  Step = "request_password"
	StepDecrypt          Step = "decrypt"
	StepExtractText      Step = "extract_text"
	StepVisionExtraction Step = "vision_extraction"
	StepCollectData      Step = "collect_data"
	StepRequestDate      Step = "request_date"
	StepStandardize      Step = "standardize"
	StepPersist          Step = "persist"
	StepDone             Step = "done"
)

// Steps lists every step in forward order.
var Steps = []Step{
	StepReceiveUpload, StepCheckEncryption, StepRequestPassword, StepDecrypt,
	StepExtractText, StepVisionExtraction, StepCollectData, StepRequestDate,
	StepStandardize, StepPersist, StepDone,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, k := range Steps {
		if k == s {
			return true
		}
	}
	return false
}

// State is the unit of work for one document, keyed by ThreadID.
type State struct {
	ThreadID   string           `json:"thread_id"`
	PatientID  uuid.UUID        `json:"patient_id"`
	ClinicID   uuid.UUID        `json:"clinic_id"`
	SourcePath string           `json:"source_path"`
	WorkPath   string           `json:"work_path"` // decrypted copy once a password is accepted
	SourceKind string           `json:"source_kind"`
	Gender     constants.Gender `json:"gender,omitempty"`
	PageCount  int              `json:"page_count"`

	IsEncrypted      bool   `json:"is_encrypted"`
	Password         string `json:"-"` // never checkpointed; cleared after decrypt
	DecryptError     string `json:"decrypt_error,omitempty"`
	PasswordAttempts int    `json:"password_attempts"`

	ExtractedText   string         `json:"extracted_text,omitempty"`
	ExtractedTables [][][]string   `json:"extracted_tables,omitempty"`
	NeedsVision     bool           `json:"needs_vision"`
	ImagePaths      []string       `json:"image_paths,omitempty"`
	VisionData      *vision.Result `json:"vision_data,omitempty"`
	CombinedData    string         `json:"combined_data,omitempty"`

	ReportType    constants.ReportType `json:"report_type"`
	LabName       string               `json:"lab_name,omitempty"`
	ReportDate    string               `json:"report_date,omitempty"` // YYYY-MM-DD
	Biomarkers    []entity.Biomarker   `json:"biomarkers"`
	ExtractMethod string               `json:"extract_method,omitempty"`
	ReportID      *uuid.UUID           `json:"report_id,omitempty"`

	Status  constants.WorkflowStatus `json:"status"`
	Step    Step                     `json:"current_state"`
	Message string                   `json:"message,omitempty"`
	Hint    string                   `json:"hint,omitempty"`
	Errors  []string                 `json:"errors"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Path is the file downstream tools should read.
func (s *State) Path() string {
	if s.WorkPath != "" {
		return s.WorkPath
	}
	return s.SourcePath
}

func (s *State) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func (s *State) fail(msg string) {
	s.addError(msg)
	s.Status = constants.StatusFailed
}

// AbnormalCount counts biomarkers flagged abnormal.
func (s *State) AbnormalCount() int {
	n := 0
	for _, b := range s.Biomarkers {
		if b.IsAbnormal {
			n++
		}
	}
	return n
}

// transition returns the step that follows from after its node has run. It
// reads only the state and never performs work.
func transition(s *State, from Step) Step {
	if s.Status == constants.StatusFailed || s.Status == constants.StatusCompleted {
		return StepDone
	}
	switch from {
	case StepReceiveUpload:
		if s.SourceKind == constants.IMAGE {
			return StepVisionExtraction
		}
		return StepCheckEncryption
	case StepCheckEncryption:
		if s.IsEncrypted {
			return StepRequestPassword
		}
		return StepExtractText
	case StepRequestPassword:
		if s.Status == constants.StatusWaitingPassword {
			return StepRequestPassword
		}
		return StepDecrypt
	case StepDecrypt:
		if s.DecryptError != "" {
			return StepRequestPassword
		}
		return StepExtractText
	case StepExtractText:
		if s.NeedsVision {
			return StepVisionExtraction
		}
		return StepCollectData
	case StepVisionExtraction:
		return StepCollectData
	case StepCollectData:
		return StepRequestDate
	case StepRequestDate:
		if s.Status == constants.StatusWaitingDate {
			return StepRequestDate
		}
		return StepStandardize
	case StepStandardize:
		return StepPersist
	case StepPersist:
		return StepDone
	}
	return StepDone
}
