package workflow

import (
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

const msgEncrypted = "PDF is encrypted. Please provide the password."

// Response is returned by Submit and both Resume calls.
type Response struct {
	Status   constants.WorkflowStatus `json:"status"`
	ThreadID string                   `json:"thread_id"`
	ReportID *uuid.UUID               `json:"report_id,omitempty"`
	Message  string                   `json:"message"`
	Prompt   *Prompt                  `json:"prompt,omitempty"`
	Result   *Result                  `json:"result,omitempty"`
	Errors   []string                 `json:"errors,omitempty"`
}

// Prompt is the payload handed back at a suspension point.
type Prompt struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
}

// Result summarizes a completed workflow.
type Result struct {
	ReportType      constants.ReportType `json:"report_type"`
	LabName         string               `json:"lab_name"`
	Biomarkers      []entity.Biomarker   `json:"biomarkers"`
	TotalBiomarkers int                  `json:"total_biomarkers"`
	AbnormalCount   int                  `json:"abnormal_count"`
}

// StatusResponse is returned by GetStatus.
type StatusResponse struct {
	ThreadID     string                   `json:"thread_id"`
	Status       constants.WorkflowStatus `json:"status"`
	CurrentState Step                     `json:"current_state"`
	ReportID     *uuid.UUID               `json:"report_id,omitempty"`
	Errors       []string                 `json:"errors"`
}

func (o *Orchestrator) respond(s *State, submitted bool) *Response {
	r := &Response{
		Status:   s.Status,
		ThreadID: s.ThreadID,
		ReportID: s.ReportID,
		Errors:   s.Errors,
	}
	switch s.Status {
	case constants.StatusWaitingPassword:
		r.Message = s.Message
		if submitted && s.DecryptError == "" {
			r.Message = msgEncrypted
		}
		r.Prompt = &Prompt{ThreadID: s.ThreadID, Message: s.Message, Hint: s.Hint}
	case constants.StatusWaitingDate:
		r.Message = s.Message
		r.Prompt = &Prompt{ThreadID: s.ThreadID, Message: s.Message}
	case constants.StatusCompleted:
		r.Message = s.Message
		r.Result = &Result{
			ReportType:      s.ReportType,
			LabName:         s.LabName,
			Biomarkers:      nonNilBiomarkers(s.Biomarkers),
			TotalBiomarkers: len(s.Biomarkers),
			AbnormalCount:   s.AbnormalCount(),
		}
	case constants.StatusFailed:
		r.Message = strings.Join(s.Errors, "; ")
	default:
		r.Message = s.Message
	}
	return r
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func nonNilBiomarkers(xs []entity.Biomarker) []entity.Biomarker {
	if xs == nil {
		return []entity.Biomarker{}
	}
	return xs
}
