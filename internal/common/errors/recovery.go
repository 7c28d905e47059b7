package errors

import "fmt"

// ==========================
// 5. Recovery Classification
// ==========================

// RecoveryAction is what the caller should do about a failure.
type RecoveryAction string

const (
	ActionRetry              RecoveryAction = "retry"
	ActionRetryAfterDelay    RecoveryAction = "retry_after_delay"
	ActionFixAndRetry        RecoveryAction = "fix_and_retry"
	ActionHumanInputRequired RecoveryAction = "human_input_required"
	ActionAbort              RecoveryAction = "abort"
)

// Retries reports whether the action permits an automatic retry.
func (a RecoveryAction) Retries() bool {
	return a == ActionRetry || a == ActionRetryAfterDelay
}

// Classify maps an error to its recovery action. The result depends only on
// the error kind. A nil error or a kind outside the taxonomy panics: every
// kind must be listed here.
func Classify(e *CompilerError) RecoveryAction {
	return ClassifyKind(e.Kind)
}

// ClassifyKind is Classify for a bare kind.
func ClassifyKind(kind ErrorKind) RecoveryAction {
	switch kind {
	case KindTimeout, KindServerError:
		return ActionRetry
	case KindRateLimit:
		return ActionRetryAfterDelay
	case KindClientError:
		return ActionAbort
	case KindEmptyResponse, KindNoJSONFound, KindMultipleArtifacts, KindExplanatoryText, KindInvalidJSON:
		return ActionAbort
	case KindCodeInOutput, KindSchemaViolation, KindSchemaNotFound:
		return ActionAbort
	case KindMissingInformation:
		return ActionHumanInputRequired
	case KindInvalidRequest:
		return ActionFixAndRetry
	case KindUnknownSentinel, KindInternal:
		return ActionAbort
	}
	panic(fmt.Sprintf("errors: unclassified error kind %q", kind))
}

// ==========================
// 6. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// BPMNErrorMapping maps kinds to the error codes modelled as boundary events.
var BPMNErrorMapping = map[ErrorKind]string{
	KindTimeout:            "MODEL_TIMEOUT",
	KindServerError:        "MODEL_UNAVAILABLE",
	KindClientError:        "MODEL_REQUEST_REJECTED",
	KindRateLimit:          "MODEL_RATE_LIMITED",
	KindEmptyResponse:      "ARTIFACT_EXTRACTION_FAILED",
	KindNoJSONFound:        "ARTIFACT_EXTRACTION_FAILED",
	KindMultipleArtifacts:  "ARTIFACT_EXTRACTION_FAILED",
	KindExplanatoryText:    "ARTIFACT_EXTRACTION_FAILED",
	KindInvalidJSON:        "ARTIFACT_EXTRACTION_FAILED",
	KindCodeInOutput:       "ARTIFACT_CONTAINS_CODE",
	KindSchemaViolation:    "ARTIFACT_SCHEMA_VIOLATION",
	KindSchemaNotFound:     "SCHEMA_CONFIGURATION_ERROR",
	KindMissingInformation: "HUMAN_INPUT_REQUIRED",
	KindInvalidRequest:     "PASS_REQUEST_INVALID",
	KindUnknownSentinel:    "MODEL_REFUSED",
	KindInternal:           "INTERNAL_ERROR",
}

// ConvertToBPMNError builds the BPMN error thrown for a terminal failure.
func ConvertToBPMNError(e *CompilerError) *BPMNError {
	code, ok := BPMNErrorMapping[e.Kind]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	action := Classify(e)

	vars := map[string]interface{}{
		"errorKind":      string(e.Kind),
		"errorCategory":  e.Category(),
		"recoveryAction": string(action),
		"blocking":       !e.Recoverable,
		"summary":        e.Error(),
	}
	if len(e.MissingItems) > 0 {
		vars["missingItems"] = e.MissingItems
	}
	if e.Location != "" {
		vars["location"] = e.Location
	}
	if len(e.ValidationErrors) > 0 {
		vars["validationErrors"] = e.ValidationErrors
	}
	if e.RetryAfter > 0 {
		vars["retryAfterSeconds"] = e.RetryAfter.Seconds()
	}

	return &BPMNError{
		Code:           code,
		Message:        e.Message,
		Details:        Truncate(e.Details, MaxDetailsExcerpt),
		Retryable:      action.Retries(),
		ErrorVariables: vars,
	}
}
