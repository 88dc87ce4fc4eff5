package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/llm"
)

// CodeWorkflowExists is the AppError code returned when a thread id is reused.
const CodeWorkflowExists = "WORKFLOW_EXISTS"

// Config tunes the orchestrator.
type Config struct {
	UploadDir           string        // renders and decrypted copies go to UploadDir/<thread_id>
	RenderZoom          float64       // default 2.0
	MaxPasswordAttempts int           // 0 means unlimited
	RawTextLimit        int           // default 10000
	CheckpointTTL       time.Duration // 0 disables PurgeExpired
}

// Orchestrator drives workflows through the step graph, checkpointing after
// every step.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Documents == nil || deps.Standardize == nil || deps.Reports == nil || deps.Trends == nil {
		return nil, errors.New("workflow: documents, standardizer, reports and trends are required")
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = NewMemoryStore()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join("/tmp", "lab_reports")
	}
	if cfg.RenderZoom <= 0 {
		cfg.RenderZoom = 2.0
	}
	if cfg.RawTextLimit <= 0 {
		cfg.RawTextLimit = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SubmitRequest starts a workflow for one document.
type SubmitRequest struct {
	ThreadID   string // generated when empty
	Path       string
	PatientID  uuid.UUID
	ClinicID   uuid.UUID
	ReportDate string // optional, any layout llm.NormalizeDate accepts
	Password   string // optional
	Gender     constants.Gender
}

// Submit creates a workflow and runs it until it completes, fails or suspends.
// Workflow failures come back in the Response; the error is reserved for bad
// input and checkpoint store problems.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Response, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	now := o.now()
	s := &State{
		ThreadID:   req.ThreadID,
		PatientID:  req.PatientID,
		ClinicID:   req.ClinicID,
		SourcePath: req.Path,
		SourceKind: constants.MapExtToFormat(filepath.Ext(req.Path)),
		Gender:     constants.Gender(strings.ToLower(strings.TrimSpace(string(req.Gender)))),
		Password:   req.Password,
		ReportType: constants.CategoryOther,
		Biomarkers: []entity.Biomarker{},
		Status:     constants.StatusProcessing,
		Step:       StepReceiveUpload,
		Errors:     []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.ThreadID == "" {
		s.ThreadID = uuid.New().String()
	}
	if req.ReportDate != "" {
		d, _ := llm.NormalizeDate(req.ReportDate)
		s.ReportDate = d
	}

	_, err := o.deps.Checkpoints.Get(ctx, s.ThreadID)
	switch {
	case err == nil:
		return nil, common.NewAppError(CodeWorkflowExists, "thread_id already in use", common.ErrAlreadyExists)
	case !errors.Is(err, common.ErrNotFound):
		// only a confirmed miss frees the thread id
		o.logger.Error("workflow.submit.lookup_failed", "thread_id", s.ThreadID, "error", err)
		return nil, common.WrapError(err, "check thread_id")
	}

	o.logger.Info("workflow.submit",
		"thread_id", s.ThreadID,
		"patient_id", s.PatientID,
		"source_kind", s.SourceKind,
		"has_password", req.Password != "",
		"has_date", s.ReportDate != "",
	)
	if err := o.run(ctx, s); err != nil {
		return nil, err
	}
	return o.respond(s, true), nil
}

// ResumeWithPassword supplies a credential to a workflow waiting for one.
func (o *Orchestrator) ResumeWithPassword(ctx context.Context, threadID, password string) (*Response, error) {
	s, err := o.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if s.Status != constants.StatusWaitingPassword {
		return nil, common.NewAppError("WORKFLOW_STATE", "Workflow is not waiting for password", common.ErrInvalidInput)
	}
	s.Password = password
	s.Status = constants.StatusProcessing

	o.logger.Info("workflow.resume.password", "thread_id", threadID, "attempts", s.PasswordAttempts)
	if err := o.run(ctx, s); err != nil {
		return nil, err
	}
	return o.respond(s, false), nil
}

// ResumeWithDate supplies the report date to a workflow waiting for one.
func (o *Orchestrator) ResumeWithDate(ctx context.Context, threadID, date string) (*Response, error) {
	d, ok := llm.NormalizeDate(date)
	if !ok {
		return nil, common.NewAppError("INVALID_DATE", fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", date), common.ErrInvalidInput)
	}
	s, err := o.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if s.Status != constants.StatusWaitingDate {
		return nil, common.NewAppError("WORKFLOW_STATE", "Workflow is not waiting for date", common.ErrInvalidInput)
	}
	s.ReportDate = d
	s.Status = constants.StatusProcessing

	o.logger.Info("workflow.resume.date", "thread_id", threadID, "report_date", d)
	if err := o.run(ctx, s); err != nil {
		return nil, err
	}
	return o.respond(s, false), nil
}

// GetStatus reads the checkpoint without advancing it.
func (o *Orchestrator) GetStatus(ctx context.Context, threadID string) (*StatusResponse, error) {
	s, err := o.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		ThreadID:     s.ThreadID,
		Status:       s.Status,
		CurrentState: s.Step,
		ReportID:     s.ReportID,
		Errors:       nonNil(s.Errors),
	}, nil
}

// PurgeExpired drops checkpoints idle for longer than the configured TTL.
func (o *Orchestrator) PurgeExpired(ctx context.Context) (int, error) {
	if o.cfg.CheckpointTTL <= 0 {
		return 0, nil
	}
	n, err := o.deps.Checkpoints.PurgeExpired(ctx, o.now().Add(-o.cfg.CheckpointTTL))
	if err != nil {
		return 0, common.WrapError(err, "purge checkpoints")
	}
	if n > 0 {
		o.logger.Info("workflow.checkpoints.purged", "count", n, "ttl", o.cfg.CheckpointTTL.String())
	}
	return n, nil
}

func (o *Orchestrator) load(ctx context.Context, threadID string) (*State, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, common.NewAppError("INVALID_ARGUMENT", "thread_id is required", common.ErrInvalidInput)
	}
	s, err := o.deps.Checkpoints.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAppError("WORKFLOW_NOT_FOUND", "Workflow not found", common.ErrNotFound)
		}
		return nil, common.WrapError(err, "load checkpoint")
	}
	return s, nil
}

// run executes steps from s.Step until done or a suspension point repeats.
func (o *Orchestrator) run(ctx context.Context, s *State) error {
	ctx = common.WithThreadID(ctx, s.ThreadID)
	for s.Step != StepDone {
		if err := ctx.Err(); err != nil {
			if perr := o.checkpoint(ctx, s); perr != nil {
				o.logger.Error("workflow.checkpoint.error", "thread_id", s.ThreadID, "error", perr)
			}
			return err
		}

		step := s.Step
		start := time.Now()
		o.logger.Debug("workflow.node.enter", "thread_id", s.ThreadID, "step", step)
		o.runNode(ctx, s, step)
		next := transition(s, step)
		o.logger.Debug("workflow.node.exit",
			"thread_id", s.ThreadID,
			"step", step,
			"next", next,
			"status", s.Status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)

		if next == step {
			if err := o.checkpoint(ctx, s); err != nil {
				return err
			}
			o.logger.Info("workflow.suspended", "thread_id", s.ThreadID, "step", step, "status", s.Status)
			return nil
		}
		s.Step = next
		if err := o.checkpoint(ctx, s); err != nil {
			return err
		}
	}

	switch s.Status {
	case constants.StatusCompleted:
		o.logger.Info("workflow.completed", "thread_id", s.ThreadID, "report_id", s.ReportID, "biomarkers", len(s.Biomarkers))
	default:
		o.logger.Warn("workflow.failed", "thread_id", s.ThreadID, "errors", s.Errors)
	}
	return nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, s *State) error {
	s.UpdatedAt = o.now()
	if err := o.deps.Checkpoints.Put(context.WithoutCancel(ctx), s); err != nil {
		o.logger.Error("workflow.checkpoint.error", "thread_id", s.ThreadID, "step", s.Step, "error", err)
		return common.WrapError(err, "checkpoint")
	}
	return nil
}

func validateSubmit(req SubmitRequest) error {
	gender := strings.ToLower(strings.TrimSpace(string(req.Gender)))
	v := common.NewValidator().
		Field("path", req.Path, common.Required).
		Field("patient_id", req.PatientID, common.UUID).
		Field("clinic_id", req.ClinicID, common.UUID).
		Field("gender", gender, common.OneOf("", string(constants.GenderMale), string(constants.GenderFemale)))
	if req.ReportDate != "" {
		v.Field("report_date", req.ReportDate, looseDate)
	}
	if v.HasErrors() {
		return common.NewAppError("INVALID_ARGUMENT", v.ErrorMessage(), common.ErrInvalidInput)
	}
	return nil
}

func looseDate(field string, value interface{}) *common.ValidationError {
	s, _ := value.(string)
	if _, ok := llm.NormalizeDate(s); !ok {
		return &common.ValidationError{Field: field, Value: value, Message: "must be a date (YYYY-MM-DD)"}
	}
	return nil
}
