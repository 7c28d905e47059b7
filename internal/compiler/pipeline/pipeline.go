// Package pipeline is the single compile path every model response goes
// through: extract, decode, sentinel, schema, code. Run adds the retry loop
// around the model call and reports terminal failures.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/common/metrics"
	"artifact-compiler/internal/common/observability"
	"artifact-compiler/internal/common/validation"
	"artifact-compiler/internal/compiler/codedetector"
	"artifact-compiler/internal/compiler/extractor"
	"artifact-compiler/internal/compiler/report"
	"artifact-compiler/internal/compiler/retry"
	"artifact-compiler/internal/compiler/sentinel"
	"artifact-compiler/internal/models"
)

const (
	StageExtract  = "extract"
	StageDecode   = "decode"
	StageSentinel = "sentinel"
	StageSchema   = "schema"
	StageCode     = "code"
)

// Pipeline compiles raw model text into artifacts. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	extractor  *extractor.Extractor
	allowArray bool
	schemas    *validation.SchemaValidator
	retry      *retry.Controller
	reporter   *report.Reporter
	obs        *observability.Observability
	tracer     trace.Tracer
	logger     logger.Logger
}

type Option func(*Pipeline)

// WithExtractorOptions replaces the default object-only extractor.
func WithExtractorOptions(opts extractor.Options) Option {
	return func(p *Pipeline) {
		p.extractor = extractor.New(opts)
		p.allowArray = opts.AllowArray
	}
}

func WithRetry(c *retry.Controller) Option {
	return func(p *Pipeline) { p.retry = c }
}

// WithReporter persists terminal failures from Run.
func WithReporter(r *report.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithObservability records spans and compile outcomes through o instead of
// the global otel providers.
func WithObservability(o *observability.Observability) Option {
	return func(p *Pipeline) {
		p.obs = o
		p.tracer = o.Tracer()
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(schemas *validation.SchemaValidator, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor.New(extractor.Options{}),
		schemas:   schemas,
		tracer:    otel.Tracer("artifact-compiler/pipeline"),
		logger:    logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry == nil {
		p.retry = retry.New(retry.DefaultConfig(), p.logger)
	}
	return p
}

// Compile runs raw through every stage. The first failing stage decides the
// error, which is always a *errors.CompilerError. A sentinel stops the
// pipeline before schema validation.
func (p *Pipeline) Compile(ctx context.Context, raw string, kind models.ArtifactKind) (*models.Artifact, error) {
	ctx, span := p.tracer.Start(ctx, "compile", trace.WithAttributes(
		attribute.String("artifact.kind", string(kind)),
		attribute.Int("response.length", len(raw)),
	))
	defer span.End()

	var doc string
	err := p.stage(ctx, StageExtract, func() error {
		var err error
		doc, err = p.extractor.Extract(raw)
		return err
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	var decoded interface{}
	err = p.stage(ctx, StageDecode, func() error {
		return p.decode(doc, &decoded)
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	err = p.stage(ctx, StageSentinel, func() error {
		if ce := sentinel.Parse(decoded); ce != nil {
			return ce
		}
		return nil
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	err = p.stage(ctx, StageSchema, func() error {
		return p.schemas.Validate(decoded, kind)
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	err = p.stage(ctx, StageCode, func() error {
		if f, found := codedetector.ContainsCode(decoded); found {
			return errors.NewCodeInOutputError(f.Location, f.Snippet)
		}
		return nil
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	return &models.Artifact{
		Kind:     kind,
		Payload:  decoded,
		Document: doc,
	}, nil
}

// decode keeps numbers as json.Number so large integer ids survive intact.
func (p *Pipeline) decode(doc string, out *interface{}) error {
	d := json.NewDecoder(strings.NewReader(doc))
	d.UseNumber()
	if err := d.Decode(out); err != nil {
		return errors.NewInvalidJSONError(err)
	}
	if _, err := d.Token(); err != io.EOF {
		return errors.NewInvalidJSONError(fmt.Errorf("unexpected data after top-level value"))
	}
	switch (*out).(type) {
	case map[string]interface{}:
		return nil
	case []interface{}:
		if p.allowArray {
			return nil
		}
	}
	return errors.NewInvalidJSONError(fmt.Errorf("root is %s, want object", jsonType(*out)))
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	_, span := p.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	p.logger.Debug("Stage passed", map[string]interface{}{
		"stage": name,
	})
	return nil
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	if ce, ok := errors.AsCompilerError(err); ok {
		span.SetAttributes(
			attribute.String("error.kind", string(ce.Kind)),
			attribute.String("recovery.action", string(errors.Classify(ce))),
		)
	}
	span.SetStatus(codes.Error, "compile failed")
	return err
}

// Request is one model call for one artifact.
type Request struct {
	Phase      string
	Kind       models.ArtifactKind
	ArtifactID string
	// MaxRetries overrides the controller budget for this request when set.
	MaxRetries *int
	// Call produces the raw model text. It is invoked once per attempt.
	Call func(ctx context.Context) (string, error)
}

// Outcome describes a finished Run. Report is set when a terminal failure
// was persisted.
type Outcome struct {
	Artifact *models.Artifact
	Attempts int
	Report   *models.FailureReport
}

// Run calls the model through the retry controller and compiles each
// response. The error of the last attempt is returned unchanged. A
// cancelled ctx returns without writing a failure report.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.ArtifactID == "" {
		req.ArtifactID = uuid.NewString()
	}
	ctx, span := p.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("phase", req.Phase),
		attribute.String("artifact.id", req.ArtifactID),
	))
	defer span.End()

	start := time.Now()
	var (
		artifact *models.Artifact
		raw      string
	)
	ctrl := p.retry
	if req.MaxRetries != nil {
		ctrl = ctrl.WithMaxRetries(*req.MaxRetries)
	}
	state, err := ctrl.Do(ctx, func(ctx context.Context, attempt int) error {
		metrics.CompileAttempts.WithLabelValues(string(req.Kind)).Inc()

		text, err := req.Call(ctx)
		if err != nil {
			return err
		}
		raw = text

		artifact, err = p.Compile(ctx, text, req.Kind)
		return err
	})

	out := &Outcome{Attempts: state.Attempt + 1}
	if err == nil {
		artifact.ID = req.ArtifactID
		artifact.Phase = req.Phase
		artifact.Attempts = out.Attempts
		out.Artifact = artifact

		metrics.CompileSucceeded.WithLabelValues(string(req.Kind)).Inc()
		p.recordCompile(ctx, req.Kind, "compiled", start)
		p.logger.Info("Artifact compiled", map[string]interface{}{
			"phase":        req.Phase,
			"artifactId":   req.ArtifactID,
			"artifactKind": string(req.Kind),
			"attempts":     out.Attempts,
		})
		return out, nil
	}

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return out, err
	}
	p.recordCompile(ctx, req.Kind, "failed", start)

	ce, ok := errors.AsCompilerError(err)
	if !ok {
		return out, err
	}
	action := errors.Classify(ce)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(ce.Kind))
	metrics.CompileFailures.WithLabelValues(string(req.Kind), string(ce.Kind), string(action)).Inc()

	fields := map[string]interface{}{
		"phase":          req.Phase,
		"artifactId":     req.ArtifactID,
		"artifactKind":   string(req.Kind),
		"attempt":        out.Attempts,
		"errorKind":      string(ce.Kind),
		"recoveryAction": string(action),
		"recoverable":    ce.Recoverable,
		"error":          ce.Error(),
	}
	if ce.Recoverable {
		p.logger.Warn("Compilation failed", fields)
	} else {
		p.logger.Error("Compilation failed", fields)
	}

	if p.reporter != nil {
		rep, rerr := p.reporter.Report(ctx, ce, report.Input{
			Phase:        req.Phase,
			ArtifactID:   req.ArtifactID,
			ArtifactKind: req.Kind,
			RawResponse:  raw,
		})
		if rerr != nil {
			p.logger.Error("Failed to persist failure report", map[string]interface{}{
				"phase": req.Phase,
				"error": rerr,
			})
		}
		out.Report = rep
	}
	return out, err
}

func (p *Pipeline) recordCompile(ctx context.Context, kind models.ArtifactKind, status string, start time.Time) {
	if p.obs != nil {
		p.obs.RecordCompile(ctx, string(kind), status, time.Since(start))
	}
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	default:
		return "object"
	}
}
