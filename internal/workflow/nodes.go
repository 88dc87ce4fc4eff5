package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/extract"
	"github.com/joseph-ayodele/labreports/internal/llm"
	"github.com/joseph-ayodele/labreports/internal/trend"
)

// Prompt texts returned at suspension points.
const (
	PasswordPrompt     = "This PDF is password-protected. Please provide the password."
	PasswordHint       = "Tip: Lab passwords are often your date of birth (MMDDYYYY or DDMMYYYY)"
	DatePrompt         = "Could not extract report date. Please provide the test date."
	DatePromptImage    = "Could not extract report date from image. Please provide the test date."
	msgNoPassword      = "No password provided"
	msgWrongPassword   = "Incorrect password"
	msgNoData          = "No data to process"
	msgTooManyAttempts = "Maximum password attempts exceeded"
	methodVision       = "vision"
	decryptedFileName  = "decrypted.pdf"
)

// runNode executes the work of one step. Nodes record failures on the state
// and never return them.
func (o *Orchestrator) runNode(ctx context.Context, s *State, step Step) {
	switch step {
	case StepReceiveUpload:
		o.receiveUpload(s)
	case StepCheckEncryption:
		o.checkEncryption(s)
	case StepRequestPassword:
		o.requestPassword(s)
	case StepDecrypt:
		o.decrypt(s)
	case StepExtractText:
		o.extractText(ctx, s)
	case StepVisionExtraction:
		o.visionExtraction(ctx, s)
	case StepCollectData:
		o.collectData(s)
	case StepRequestDate:
		o.requestDate(s)
	case StepStandardize:
		o.standardize(ctx, s)
	case StepPersist:
		o.persist(ctx, s)
	}
}

func (o *Orchestrator) receiveUpload(s *State) {
	if s.SourceKind == "" {
		s.fail(fmt.Sprintf("Unsupported file type: %s", filepath.Ext(s.SourcePath)))
		return
	}
	if _, err := os.Stat(s.SourcePath); err != nil {
		if s.SourceKind == constants.IMAGE {
			s.fail("Image file not found: " + s.SourcePath)
		} else {
			s.fail("PDF file not found: " + s.SourcePath)
		}
		return
	}
	if s.SourceKind == constants.IMAGE {
		s.PageCount = 1
		s.Status = constants.StatusProcessing
		return
	}

	n, err := o.deps.Documents.PageCount(s.SourcePath, "")
	switch {
	case errors.Is(err, common.ErrEncryptionCredential):
		// counted after decryption
	case err != nil || n == 0:
		s.fail("Invalid PDF file or no pages found")
		return
	default:
		s.PageCount = n
	}
	s.Status = constants.StatusProcessing
}

func (o *Orchestrator) checkEncryption(s *State) {
	s.IsEncrypted = o.deps.Documents.CheckEncrypted(s.SourcePath)
	o.logger.Info("workflow.check_encryption", "thread_id", s.ThreadID, "is_encrypted", s.IsEncrypted)
}

func (o *Orchestrator) requestPassword(s *State) {
	if s.Password != "" {
		s.Status = constants.StatusProcessing
		s.Message, s.Hint = "", ""
		return
	}
	if o.cfg.MaxPasswordAttempts > 0 && s.PasswordAttempts >= o.cfg.MaxPasswordAttempts {
		s.fail(msgTooManyAttempts)
		return
	}
	s.Status = constants.StatusWaitingPassword
	s.Message = PasswordPrompt
	if s.DecryptError != "" {
		s.Message = fmt.Sprintf("Decryption failed: %s. Please try again.", s.DecryptError)
	}
	s.Hint = PasswordHint
}

func (o *Orchestrator) decrypt(s *State) {
	password := s.Password
	s.Password = ""
	s.PasswordAttempts++

	if password == "" {
		s.DecryptError = msgNoPassword
		s.addError("Decryption failed: " + msgNoPassword)
		return
	}

	out := filepath.Join(o.cfg.UploadDir, s.ThreadID, decryptedFileName)
	if err := o.deps.Documents.DecryptToFile(s.SourcePath, out, password); err != nil {
		if errors.Is(err, common.ErrEncryptionCredential) {
			s.DecryptError = msgWrongPassword
			s.addError("Decryption failed: " + msgWrongPassword)
			o.logger.Info("workflow.decrypt.wrong_password", "thread_id", s.ThreadID, "attempts", s.PasswordAttempts)
			return
		}
		s.fail(fmt.Sprintf("Decryption failed: %v", err))
		return
	}

	s.DecryptError = ""
	s.WorkPath = out
	if n, err := o.deps.Documents.PageCount(out, ""); err == nil {
		s.PageCount = n
	}
	o.logger.Info("workflow.decrypt.ok", "thread_id", s.ThreadID, "pages", s.PageCount)
}

func (o *Orchestrator) extractText(ctx context.Context, s *State) {
	path := s.Path()
	layout, err := o.deps.Documents.Analyze(ctx, path, "")
	if err != nil {
		s.addError(fmt.Sprintf("Text extraction failed: %v", err))
		o.logger.Warn("workflow.extract_text.failed", "thread_id", s.ThreadID, "error", err)
	}
	text := layout.Text
	s.ExtractedText = text
	s.ExtractedTables = layout.Tables
	s.NeedsVision = utf8.RuneCountInString(strings.TrimSpace(text)) < minTextChars || layout.NeedsVision

	o.logger.Info("workflow.extract_text",
		"thread_id", s.ThreadID,
		"chars", len(text),
		"tables", len(s.ExtractedTables),
		"needs_vision", s.NeedsVision,
	)
}

// minTextChars is the text length below which a PDF is treated as scanned.
const minTextChars = 100

func (o *Orchestrator) visionExtraction(ctx context.Context, s *State) {
	if o.deps.Vision == nil {
		s.addError("Vision extraction unavailable: no vision model configured")
		return
	}

	if s.SourceKind == constants.IMAGE {
		s.ImagePaths = []string{s.SourcePath}
	} else {
		outDir := filepath.Join(o.cfg.UploadDir, s.ThreadID)
		paths, err := o.deps.Documents.RenderPagesToImages(ctx, s.Path(), outDir, "", o.cfg.RenderZoom)
		if err != nil {
			s.addError(fmt.Sprintf("Failed to convert PDF to images: %v", err))
			return
		}
		s.ImagePaths = paths
	}

	res := o.deps.Vision.ExtractFromMultiple(ctx, s.ImagePaths)
	s.VisionData = &res
	for _, e := range res.Errors {
		s.addError("Vision extraction: " + e)
	}
	o.logger.Info("workflow.vision_extraction",
		"thread_id", s.ThreadID,
		"pages", res.Pages,
		"failed_pages", res.FailedPages,
		"biomarkers", len(res.Biomarkers),
	)
}

func (o *Orchestrator) collectData(s *State) {
	parts := make([]string, 0, 8)
	if strings.TrimSpace(s.ExtractedText) != "" {
		parts = append(parts, "=== TEXT EXTRACTION ===", s.ExtractedText)
	}
	if len(s.ExtractedTables) > 0 {
		parts = append(parts, "\n=== TABLES ===")
		for i, table := range s.ExtractedTables {
			parts = append(parts, fmt.Sprintf("\nTable %d:", i+1))
			for _, row := range table {
				parts = append(parts, strings.Join(row, " | "))
			}
		}
	}
	if s.VisionData != nil && len(s.VisionData.Biomarkers) > 0 {
		vj, _ := json.MarshalIndent(s.VisionData, "", "  ")
		parts = append(parts, "\n=== VISION EXTRACTION ===", string(vj))
	}
	s.CombinedData = strings.Join(parts, "\n")

	if strings.TrimSpace(s.CombinedData) == "" {
		s.ReportType = constants.CategoryOther
		s.fail(msgNoData)
		return
	}

	if v := s.VisionData; v != nil {
		if s.LabName == "" {
			s.LabName = v.LabName
		}
		if s.ReportDate == "" {
			if d, ok := llm.NormalizeDate(v.ReportDate); ok {
				s.ReportDate = d
			}
		}
	}
	if s.ReportDate == "" {
		if d, ok := extract.FindReportDate(s.ExtractedText); ok {
			s.ReportDate = d
		}
	}
}

func (o *Orchestrator) requestDate(s *State) {
	if s.ReportDate != "" {
		s.Status = constants.StatusProcessing
		s.Message, s.Hint = "", ""
		return
	}
	s.Status = constants.StatusWaitingDate
	s.Message = DatePrompt
	if s.SourceKind == constants.IMAGE {
		s.Message = DatePromptImage
	}
	s.Hint = ""
}

func (o *Orchestrator) standardize(ctx context.Context, s *State) {
	var (
		raws       []entity.RawBiomarker
		reportType string
	)

	if v := s.VisionData; v != nil && len(v.Biomarkers) > 0 {
		for _, b := range v.Biomarkers {
			raws = append(raws, b.Raw())
		}
		reportType = v.ReportType
		s.ExtractMethod = methodVision
	} else {
		if o.deps.Text == nil {
			s.fail("Biomarker extraction unavailable: no text extractor configured")
			return
		}
		res, err := o.deps.Text.ExtractBiomarkers(ctx, s.CombinedData)
		if err != nil {
			s.fail(fmt.Sprintf("Biomarker extraction failed: %v", err))
			return
		}
		for _, w := range res.Warnings {
			s.addError(w)
		}
		raws = res.Fields.RawBiomarkers()
		reportType = res.Fields.ReportType
		if s.LabName == "" {
			s.LabName = strings.TrimSpace(res.Fields.LabName)
		}
		s.ExtractMethod = res.Method
	}

	s.ReportType, _ = constants.Canonicalize(reportType)
	s.Biomarkers = o.deps.Standardize.ApplyAll(raws, s.Gender)
	o.logger.Info("workflow.standardize",
		"thread_id", s.ThreadID,
		"method", s.ExtractMethod,
		"report_type", s.ReportType,
		"biomarkers", len(s.Biomarkers),
	)
}

func (o *Orchestrator) persist(ctx context.Context, s *State) {
	testDate, err := time.Parse("2006-01-02", s.ReportDate)
	if err != nil {
		s.fail(fmt.Sprintf("Failed to save results: invalid report date %q", s.ReportDate))
		return
	}

	now := o.now()
	report := &entity.LabReport{
		ID:          uuid.New(),
		PatientID:   s.PatientID,
		ClinicID:    s.ClinicID,
		ThreadID:    s.ThreadID,
		ReportDate:  testDate,
		LabName:     s.LabName,
		ReportType:  s.ReportType,
		SourceKind:  s.SourceKind,
		SourcePath:  s.SourcePath,
		Status:      constants.StatusCompleted,
		RawText:     firstRunes(s.ExtractedText, o.cfg.RawTextLimit),
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if err := o.deps.Reports.CreateReport(ctx, report); err != nil {
		s.fail(fmt.Sprintf("Failed to save results: %v", err))
		return
	}
	s.ReportID = &report.ID

	rows := make([]entity.BiomarkerRecord, 0, len(s.Biomarkers))
	for _, b := range s.Biomarkers {
		rows = append(rows, entity.BiomarkerRecord{
			Biomarker: b,
			ID:        uuid.New(),
			ReportID:  report.ID,
			PatientID: s.PatientID,
			ClinicID:  s.ClinicID,
			TestDate:  testDate,
			CreatedAt: now,
		})
	}
	if err := o.deps.Reports.AddBiomarkers(ctx, report.ID, rows); err != nil {
		o.persistFailed(ctx, s, report.ID, err)
		return
	}

	for _, b := range s.Biomarkers {
		_, err := o.deps.Trends.UpsertReading(ctx, trend.ReadingInput{
			PatientID:     s.PatientID,
			ClinicID:      s.ClinicID,
			BiomarkerName: b.StandardizedName,
			Category:      b.Category,
			Reading: entity.Reading{
				Date:           testDate,
				Value:          b.Value,
				Unit:           b.Unit,
				Flag:           b.Flag,
				SourceReportID: report.ID,
			},
		})
		if err != nil {
			o.persistFailed(ctx, s, report.ID, err)
			return
		}
	}

	s.Status = constants.StatusCompleted
	s.Message = fmt.Sprintf("Successfully processed %d biomarkers", len(s.Biomarkers))
}

// persistFailed marks the stored report failed. Rows already written stay.
func (o *Orchestrator) persistFailed(ctx context.Context, s *State, reportID uuid.UUID, cause error) {
	msg := fmt.Sprintf("Failed to save results: %v", cause)
	s.fail(msg)
	if err := o.deps.Reports.MarkFailed(ctx, reportID, msg); err != nil {
		o.logger.Error("workflow.persist.mark_failed_error", "thread_id", s.ThreadID, "report_id", reportID, "error", err)
	}
}

func firstRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
