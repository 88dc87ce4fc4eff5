package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

type LabReportRepository interface {
	CreateReport(ctx context.Context, r *entity.LabReport) error
	AddBiomarkers(ctx context.Context, reportID uuid.UUID, rows []entity.BiomarkerRecord) error
	MarkFailed(ctx context.Context, reportID uuid.UUID, message string) error
	GetReport(ctx context.Context, id uuid.UUID) (*entity.LabReportDetail, error)
	GetByThreadID(ctx context.Context, threadID string) (*entity.LabReport, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, skip int) ([]entity.LabReport, int, error)
}

type labReportRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewLabReportRepository(db *DB, logger *slog.Logger) LabReportRepository {
	return &labReportRepo{db: db, logger: logger}
}

func (r *labReportRepo) CreateReport(ctx context.Context, rep *entity.LabReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	err := validateRow(LabReportsTable.Name, labReportFields, map[string]any{
		"thread_id":   rep.ThreadID,
		"report_type": string(rep.ReportType),
		"source_kind": rep.SourceKind,
		"status":      string(rep.Status),
	})
	if err != nil {
		r.logger.Error("invalid lab report", "thread_id", rep.ThreadID, "error", err)
		return err
	}
	q, args := r.db.builder().Insert(LabReportsTable.Name).
		Columns(columnNames(LabReportsColumns)...).
		Values(
			rep.ID, rep.PatientID, rep.ClinicID, rep.ThreadID, rep.ReportDate,
			rep.LabName, string(rep.ReportType), rep.SourceKind, rep.SourcePath,
			string(rep.Status), nullableString(rep.ErrorMessage), rep.RawText,
			rep.CreatedAt, nullableTime(rep.ProcessedAt),
		).Query()
	if _, err := r.db.SQL().ExecContext(ctx, q, args...); err != nil {
		r.logger.Error("failed to create lab report", "thread_id", rep.ThreadID, "error", err)
		return fmt.Errorf("%w: create lab report: %v", common.ErrPersistenceFailure, err)
	}
	r.logger.Info("lab report created", "report_id", rep.ID, "thread_id", rep.ThreadID, "report_type", rep.ReportType)
	return nil
}

func (r *labReportRepo) AddBiomarkers(ctx context.Context, reportID uuid.UUID, rows []entity.BiomarkerRecord) error {
	if len(rows) == 0 {
		return nil
	}
	ins := r.db.builder().Insert(BiomarkersTable.Name).Columns(columnNames(BiomarkersColumns)...)
	for _, b := range rows {
		id := b.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		values := map[string]any{
			"name":              b.Name,
			"standardized_name": b.StandardizedName,
			"category":          string(b.Category),
		}
		if b.Flag != nil {
			values["flag"] = string(*b.Flag)
		}
		if err := validateRow(BiomarkersTable.Name, biomarkerFields, values); err != nil {
			r.logger.Error("invalid biomarker", "report_id", reportID, "name", b.Name, "error", err)
			return err
		}
		ins = ins.Values(
			id, b.PatientID, b.ClinicID, b.Name, b.StandardizedName, string(b.Category),
			b.Value, b.Unit, nullableFloat(b.ReferenceMin), nullableFloat(b.ReferenceMax),
			nullableFlag(b.Flag), b.IsAbnormal, b.TestDate, b.CreatedAt, reportID,
		)
	}
	q, args := ins.Query()
	if _, err := r.db.SQL().ExecContext(ctx, q, args...); err != nil {
		r.logger.Error("failed to add biomarkers", "report_id", reportID, "count", len(rows), "error", err)
		return fmt.Errorf("%w: add biomarkers: %v", common.ErrPersistenceFailure, err)
	}
	r.logger.Info("biomarkers added", "report_id", reportID, "count", len(rows))
	return nil
}

func (r *labReportRepo) MarkFailed(ctx context.Context, reportID uuid.UUID, message string) error {
	q, args := r.db.builder().Update(LabReportsTable.Name).
		Set("status", string(constants.StatusFailed)).
		Set("error_message", message).
		Where(entsql.EQ("id", reportID)).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, q, args...); err != nil {
		r.logger.Error("failed to mark lab report failed", "report_id", reportID, "error", err)
		return fmt.Errorf("%w: mark failed: %v", common.ErrPersistenceFailure, err)
	}
	r.logger.Warn("lab report marked failed", "report_id", reportID, "error", message)
	return nil
}

func (r *labReportRepo) GetReport(ctx context.Context, id uuid.UUID) (*entity.LabReportDetail, error) {
	rep, err := r.getOne(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}

	b := r.db.builder()
	t := b.Table(BiomarkersTable.Name)
	q, args := b.Select(columnNames(BiomarkersColumns)...).From(t).
		Where(entsql.EQ("report_id", id)).
		OrderBy("created_at", "name").
		Query()
	rows, err := r.db.SQL().QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list biomarkers", "report_id", id, "error", err)
		return nil, err
	}
	defer rows.Close()

	detail := &entity.LabReportDetail{LabReport: *rep, Biomarkers: []entity.BiomarkerRecord{}}
	for rows.Next() {
		rec, err := scanBiomarker(rows)
		if err != nil {
			return nil, err
		}
		detail.Biomarkers = append(detail.Biomarkers, rec)
	}
	return detail, rows.Err()
}

func (r *labReportRepo) GetByThreadID(ctx context.Context, threadID string) (*entity.LabReport, error) {
	return r.getOne(ctx, entsql.EQ("thread_id", threadID))
}

func (r *labReportRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, skip int) ([]entity.LabReport, int, error) {
	b := r.db.builder()
	cq, cargs := b.Select(entsql.Count("*")).From(b.Table(LabReportsTable.Name)).
		Where(entsql.EQ("patient_id", patientID)).
		Query()
	var total int
	if err := r.db.SQL().QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		r.logger.Error("failed to count lab reports", "patient_id", patientID, "error", err)
		return nil, 0, err
	}

	sel := b.Select(columnNames(LabReportsColumns)...).From(b.Table(LabReportsTable.Name)).
		Where(entsql.EQ("patient_id", patientID)).
		OrderBy(entsql.Desc("report_date"), entsql.Desc("created_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	if skip > 0 {
		sel = sel.Offset(skip)
	}
	q, args := sel.Query()
	rows, err := r.db.SQL().QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list lab reports", "patient_id", patientID, "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	out := []entity.LabReport{}
	for rows.Next() {
		rep, err := scanLabReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rep)
	}
	return out, total, rows.Err()
}

func (r *labReportRepo) getOne(ctx context.Context, pred *entsql.Predicate) (*entity.LabReport, error) {
	b := r.db.builder()
	q, args := b.Select(columnNames(LabReportsColumns)...).From(b.Table(LabReportsTable.Name)).
		Where(pred).
		Limit(1).
		Query()
	rep, err := scanLabReport(r.db.SQL().QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lab report: %w", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get lab report", "error", err)
		return nil, err
	}
	return rep, nil
}

func scanLabReport(s rowScanner) (*entity.LabReport, error) {
	var (
		rep         entity.LabReport
		reportType  string
		status      string
		errMsg      sql.NullString
		processedAt sql.NullTime
	)
	err := s.Scan(
		&rep.ID, &rep.PatientID, &rep.ClinicID, &rep.ThreadID, &rep.ReportDate,
		&rep.LabName, &reportType, &rep.SourceKind, &rep.SourcePath,
		&status, &errMsg, &rep.RawText, &rep.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	rep.ReportType = constants.ReportType(reportType)
	rep.Status = constants.WorkflowStatus(status)
	rep.ErrorMessage = stringPtr(errMsg)
	rep.ProcessedAt = timePtr(processedAt)
	return &rep, nil
}

func scanBiomarker(s rowScanner) (entity.BiomarkerRecord, error) {
	var (
		rec      entity.BiomarkerRecord
		category string
		refMin   sql.NullFloat64
		refMax   sql.NullFloat64
		flag     sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.PatientID, &rec.ClinicID, &rec.Name, &rec.StandardizedName, &category,
		&rec.Value, &rec.Unit, &refMin, &refMax,
		&flag, &rec.IsAbnormal, &rec.TestDate, &rec.CreatedAt, &rec.ReportID,
	)
	if err != nil {
		return rec, err
	}
	rec.Category = constants.Category(category)
	rec.ReferenceMin = floatPtr(refMin)
	rec.ReferenceMax = floatPtr(refMax)
	rec.Flag = flagPtr(flag)
	return rec, nil
}
