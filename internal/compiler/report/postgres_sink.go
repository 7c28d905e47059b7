package report

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"artifact-compiler/internal/models"
)

const uniqueViolation pq.ErrorCode = "23505"

const createReportsTable = `
CREATE TABLE IF NOT EXISTS failure_reports (
	id              TEXT PRIMARY KEY,
	phase           TEXT NOT NULL,
	artifact_id     TEXT,
	artifact_kind   TEXT,
	category        TEXT NOT NULL,
	error_kind      TEXT NOT NULL,
	summary         TEXT NOT NULL,
	details         JSONB NOT NULL,
	blocking        BOOLEAN NOT NULL,
	recovery_action TEXT NOT NULL,
	raw_excerpt     TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL DEFAULT 'open',
	resolution      TEXT,
	resolved_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_failure_reports_status_created ON failure_reports (status, created_at DESC);`

const reportColumns = `id, phase, artifact_id, artifact_kind, category, error_kind, summary, details,
	blocking, recovery_action, raw_excerpt, created_at, status, resolution, resolved_at`

// PostgresSink stores reports in the failure_reports table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the reports table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("create failure_reports: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, r *models.FailureReport) error {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO failure_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.Phase, nullString(r.ArtifactID), nullString(string(r.ArtifactKind)),
		r.Category, r.ErrorKind, r.Summary, details,
		r.Blocking, r.RecoveryAction, nullString(r.RawExcerpt), r.CreatedAt,
		string(r.Status), nullString(r.Resolution), r.ResolvedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateReport
		}
		return fmt.Errorf("insert failure report: %w", err)
	}
	return nil
}

func (s *PostgresSink) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM failure_reports WHERE id = $1`, id)
	return scanReport(row)
}

// Resolve locks the row, checks it is open and updates only the resolution
// columns in one transaction.
func (s *PostgresSink) Resolve(ctx context.Context, id, resolution string, at time.Time) (*models.FailureReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM failure_reports WHERE id = $1 FOR UPDATE`, id)
	current, err := scanReport(row)
	if err != nil {
		return nil, err
	}
	out, err := resolved(current, resolution, at)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE failure_reports
		SET status = $2, resolution = $3, resolved_at = $4
		WHERE id = $1`,
		id, string(out.Status), out.Resolution, *out.ResolvedAt,
	); err != nil {
		return nil, fmt.Errorf("update failure report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve: %w", err)
	}
	return out, nil
}

func (s *PostgresSink) List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error) {
	query := `SELECT ` + reportColumns + ` FROM failure_reports`
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Phase != "" {
		args = append(args, filter.Phase)
		where = append(where, fmt.Sprintf("phase = $%d", len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failure reports: %w", err)
	}
	defer rows.Close()

	var out []*models.FailureReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scanner) (*models.FailureReport, error) {
	var (
		r                                         models.FailureReport
		artifactID, artifactKind, raw, resolution sql.NullString
		details                                   []byte
		status                                    string
		resolvedAt                                sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.Phase, &artifactID, &artifactKind, &r.Category, &r.ErrorKind, &r.Summary, &details,
		&r.Blocking, &r.RecoveryAction, &raw, &r.CreatedAt, &status, &resolution, &resolvedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan failure report: %w", err)
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	r.ArtifactID = artifactID.String
	r.ArtifactKind = models.ArtifactKind(artifactKind.String)
	r.RawExcerpt = raw.String
	r.Resolution = resolution.String
	r.Status = models.ReportStatus(status)
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		r.ResolvedAt = &ts
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
