// Package report builds and persists failure reports for terminal pipeline
// failures.
package report

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/common/metrics"
	"artifact-compiler/internal/models"
)

// MaxRawExcerpt bounds the raw response excerpt kept on a report.
const MaxRawExcerpt = 200

var (
	ErrReportNotFound   = stderrors.New("REPORT_NOT_FOUND")
	ErrAlreadyResolved  = stderrors.New("REPORT_ALREADY_RESOLVED")
	ErrEmptyResolution  = stderrors.New("RESOLUTION_REQUIRED")
	ErrDuplicateReport  = stderrors.New("REPORT_ALREADY_EXISTS")
	ErrInvalidReportArg = stderrors.New("INVALID_REPORT")
)

// Sink persists failure reports. Resolve is the only update path and must
// apply atomically: readers see either the open report or the fully
// resolved one.
type Sink interface {
	Save(ctx context.Context, r *models.FailureReport) error
	Get(ctx context.Context, id string) (*models.FailureReport, error)
	Resolve(ctx context.Context, id, resolution string, at time.Time) (*models.FailureReport, error)
	List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error)
}

// Notifier is told about every blocking report after it is saved.
type Notifier interface {
	Notify(ctx context.Context, r *models.FailureReport) error
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status models.ReportStatus
	Phase  string
	Limit  int
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ListFilter) matches(r *models.FailureReport) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Phase != "" && r.Phase != f.Phase {
		return false
	}
	return true
}

// Input carries the context of a failure.
type Input struct {
	Phase        string
	ArtifactID   string
	ArtifactKind models.ArtifactKind
	RawResponse  string
}

// Build constructs a report without side effects.
func Build(ce *errors.CompilerError, in Input, now time.Time) *models.FailureReport {
	return &models.FailureReport{
		ID:             uuid.NewString(),
		Phase:          in.Phase,
		ArtifactID:     in.ArtifactID,
		ArtifactKind:   in.ArtifactKind,
		Category:       ce.Category(),
		ErrorKind:      string(ce.Kind),
		Summary:        ce.Error(),
		Details:        ce.Fields(),
		Blocking:       !ce.Recoverable,
		RecoveryAction: string(errors.Classify(ce)),
		RawExcerpt:     Excerpt(in.RawResponse),
		CreatedAt:      now.UTC(),
		Status:         models.ReportStatusOpen,
	}
}

// Excerpt trims raw to MaxRawExcerpt runes.
func Excerpt(raw string) string {
	return errors.Truncate(strings.TrimSpace(raw), MaxRawExcerpt)
}

// Reporter builds reports, hands them to a Sink and notifies on blocking ones.
type Reporter struct {
	sink     Sink
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
}

// NewReporter returns a reporter. notifier may be nil.
func NewReporter(sink Sink, notifier Notifier, log logger.Logger) *Reporter {
	return &Reporter{
		sink:     sink,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

// Report records a terminal failure. Errors outside the taxonomy are recorded
// as internal errors.
func (r *Reporter) Report(ctx context.Context, err error, in Input) (*models.FailureReport, error) {
	ce, ok := errors.AsCompilerError(err)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReportArg, err)
	}

	rep := Build(ce, in, r.now())
	if err := r.sink.Save(ctx, rep); err != nil {
		return nil, fmt.Errorf("save failure report: %w", err)
	}
	metrics.FailureReports.WithLabelValues(rep.Category, fmt.Sprint(rep.Blocking)).Inc()

	r.logger.Info("Failure report saved", map[string]interface{}{
		"reportId":       rep.ID,
		"phase":          rep.Phase,
		"errorKind":      rep.ErrorKind,
		"recoveryAction": rep.RecoveryAction,
		"blocking":       rep.Blocking,
	})

	if rep.Blocking && r.notifier != nil {
		if err := r.notifier.Notify(ctx, rep); err != nil {
			r.logger.Warn("Failure report notification failed", map[string]interface{}{
				"reportId": rep.ID,
				"error":    err,
			})
		}
	}
	return rep, nil
}

// Resolve records a human resolution on an open report.
func (r *Reporter) Resolve(ctx context.Context, id, resolution string) (*models.FailureReport, error) {
	if strings.TrimSpace(resolution) == "" {
		return nil, ErrEmptyResolution
	}
	rep, err := r.sink.Resolve(ctx, id, resolution, r.now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.ReportsResolved.Inc()
	r.logger.Info("Failure report resolved", map[string]interface{}{
		"reportId": id,
		"phase":    rep.Phase,
	})
	return rep, nil
}

// Get returns a persisted report.
func (r *Reporter) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	return r.sink.Get(ctx, id)
}

// List returns persisted reports, newest first.
func (r *Reporter) List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error) {
	return r.sink.List(ctx, filter)
}

// resolved returns a copy of rep with the resolution applied.
func resolved(rep *models.FailureReport, resolution string, at time.Time) (*models.FailureReport, error) {
	if rep.Status == models.ReportStatusResolved {
		return nil, ErrAlreadyResolved
	}
	out := clone(rep)
	ts := at.UTC()
	out.Status = models.ReportStatusResolved
	out.Resolution = resolution
	out.ResolvedAt = &ts
	return out, nil
}

func clone(rep *models.FailureReport) *models.FailureReport {
	out := *rep
	if rep.Details != nil {
		out.Details = make(map[string]interface{}, len(rep.Details))
		for k, v := range rep.Details {
			out.Details[k] = v
		}
	}
	if rep.ResolvedAt != nil {
		ts := *rep.ResolvedAt
		out.ResolvedAt = &ts
	}
	return &out
}
