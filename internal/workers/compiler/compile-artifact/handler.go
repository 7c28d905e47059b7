package compileartifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"artifact-compiler/internal/common/config"
	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/compiler/pipeline"
	"artifact-compiler/pkg/registry"
)

const (
	TaskType   = "compiler.artifact.compile"
	WorkerName = "compile-artifact"
)

// ModelCaller produces the per-attempt model call for a prompt.
type ModelCaller interface {
	Caller(system, prompt string) func(ctx context.Context) (string, error)
}

type Handler struct {
	config   *Config
	logger   logger.Logger
	pipeline *pipeline.Pipeline
	registry *registry.PassRegistry
	model    ModelCaller
	errors   *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Pipeline     *pipeline.Pipeline
	Registry     *registry.PassRegistry
	// Model is required only for jobs that carry a prompt.
	Model  ModelCaller
	Logger logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("pass registry is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.With(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:   workerConfig,
		logger:   log,
		pipeline: opts.Pipeline,
		registry: opts.Registry,
		model:    opts.Model,
		errors:   errors.NewErrorHandler(log),
	}, nil
}

// Handle compiles one artifact and completes the job with it. Failures are
// handed to the error handler, which fails or throws the job.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing compile request", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := parseInput(job)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return nil
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return nil
	}

	return h.completeJob(ctx, client, job, output)
}

func parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("parse job variables: %w", err))
	}
	if err := input.validate(); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("invalid job input: %w", err))
	}
	return &input, nil
}

// Execute resolves the pass for input.Phase and runs it through the
// pipeline. Pipeline errors are returned unchanged.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := input.validate(); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("invalid job input: %w", err))
	}
	pass, ok := h.registry.Get(input.Phase)
	if !ok {
		return nil, errors.NewInternalError(fmt.Errorf("unknown phase %q", input.Phase))
	}

	req := pipeline.Request{
		Phase:      pass.ID,
		Kind:       pass.ArtifactKind,
		ArtifactID: input.ArtifactID,
		MaxRetries: pass.MaxRetries,
	}
	if input.RawResponse != "" {
		// the same text would fail the same way on every attempt
		zero := 0
		raw := input.RawResponse
		req.MaxRetries = &zero
		req.Call = func(ctx context.Context) (string, error) { return raw, nil }
	} else {
		if h.model == nil {
			return nil, errors.NewInternalError(fmt.Errorf("no model configured for prompt jobs"))
		}
		req.Call = h.model.Caller(pass.System, input.Prompt)
	}

	outcome, err := h.pipeline.Run(ctx, req)
	if err != nil {
		if outcome != nil && outcome.Report != nil {
			h.logger.Info("Failure report written", map[string]interface{}{
				"reportId": outcome.Report.ID,
				"phase":    pass.ID,
				"blocking": outcome.Report.Blocking,
			})
		}
		return nil, err
	}

	return &Output{
		ArtifactID:   outcome.Artifact.ID,
		ArtifactKind: string(outcome.Artifact.Kind),
		Phase:        outcome.Artifact.Phase,
		Artifact:     outcome.Artifact.Payload,
		Attempts:     outcome.Attempts,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(output.Variables())
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}

	if _, err := request.Send(ctx); err != nil {
		return fmt.Errorf("complete job %d: %w", job.GetKey(), err)
	}

	h.logger.Info("Artifact job completed", map[string]interface{}{
		"jobKey":     job.GetKey(),
		"artifactId": output.ArtifactID,
		"phase":      output.Phase,
		"attempts":   output.Attempts,
	})
	return nil
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
