// Package errors defines the closed failure taxonomy of the compilation pipeline
// and its mapping onto BPMN errors for workflow integration.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ==========================
// 1. Error Kinds
// ==========================

// ErrorKind identifies one variant of the failure taxonomy.
type ErrorKind string

// Transport
const (
	KindTimeout     ErrorKind = "TIMEOUT"
	KindServerError ErrorKind = "API_SERVER_ERROR"
	KindClientError ErrorKind = "API_CLIENT_ERROR"
	KindRateLimit   ErrorKind = "RATE_LIMIT"
)

// Extraction
const (
	KindEmptyResponse     ErrorKind = "EMPTY_RESPONSE"
	KindNoJSONFound       ErrorKind = "NO_JSON_FOUND"
	KindMultipleArtifacts ErrorKind = "MULTIPLE_ARTIFACTS"
	KindExplanatoryText   ErrorKind = "EXPLANATORY_TEXT"
	KindInvalidJSON       ErrorKind = "INVALID_JSON"
)

// Validation
const (
	KindCodeInOutput    ErrorKind = "CODE_IN_OUTPUT"
	KindSchemaViolation ErrorKind = "SCHEMA_VIOLATION"
	KindSchemaNotFound  ErrorKind = "SCHEMA_NOT_FOUND"
)

// Sentinel
const (
	KindMissingInformation ErrorKind = "MISSING_INFORMATION"
	KindInvalidRequest     ErrorKind = "INVALID_REQUEST"
	KindUnknownSentinel    ErrorKind = "UNKNOWN_SENTINEL"
)

// KindInternal covers failures outside the taxonomy (bugs, unexpected errors).
const KindInternal ErrorKind = "INTERNAL_ERROR"

// AllKinds lists every kind in the taxonomy.
func AllKinds() []ErrorKind {
	return []ErrorKind{
		KindTimeout, KindServerError, KindClientError, KindRateLimit,
		KindEmptyResponse, KindNoJSONFound, KindMultipleArtifacts, KindExplanatoryText, KindInvalidJSON,
		KindCodeInOutput, KindSchemaViolation, KindSchemaNotFound,
		KindMissingInformation, KindInvalidRequest, KindUnknownSentinel,
		KindInternal,
	}
}

// Sentinel kinds as emitted by the model.
const (
	SentinelMissingInformation = "missing_information"
	SentinelInvalidRequest     = "invalid_request"
)

// ==========================
// 2. Compiler Error
// ==========================

// CompilerError is the single error type produced by the pipeline. Kind selects
// the variant; only the fields relevant to that variant are populated.
type CompilerError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	Recoverable bool      `json:"recoverable"`

	// transport
	StatusCode int           `json:"statusCode,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`

	// sentinel
	SentinelKind  string   `json:"sentinelKind,omitempty"`
	MissingItems  []string `json:"missingItems,omitempty"`
	InvalidReason string   `json:"invalidReason,omitempty"`

	// validation
	SchemaPath       string   `json:"schemaPath,omitempty"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
	Location         string   `json:"location,omitempty"`
	CodeSnippet      string   `json:"codeSnippet,omitempty"`

	// extraction
	Count   int    `json:"count,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	cause error
}

// MaxDetailsExcerpt bounds the details portion of the one-line summary.
const MaxDetailsExcerpt = 200

// Error renders the one-line summary: kind, optional transport attributes and a
// bounded details excerpt.
func (e *CompilerError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(Truncate(singleLine(e.Message), MaxDetailsExcerpt))

	var attrs []string
	if e.StatusCode != 0 {
		attrs = append(attrs, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Provider != "" {
		attrs = append(attrs, "provider="+e.Provider)
	}
	if e.RetryAfter > 0 {
		attrs = append(attrs, fmt.Sprintf("retry_after=%s", e.RetryAfter))
	}
	if len(attrs) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(attrs, " "))
		b.WriteString("]")
	}

	if d := singleLine(e.Details); d != "" {
		b.WriteString(" details=")
		b.WriteString(Truncate(d, MaxDetailsExcerpt))
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *CompilerError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error and returns e.
func (e *CompilerError) WithCause(err error) *CompilerError {
	e.cause = err
	return e
}

// Category returns the taxonomy family of the error.
func (e *CompilerError) Category() string {
	return GetErrorCategory(e.Kind)
}

// Action returns the recovery action for the error.
func (e *CompilerError) Action() RecoveryAction {
	return Classify(e)
}

// Fields renders the kind-specific attributes as a flat map for logs and
// reports. Model-supplied text is cut to MaxDetailsExcerpt.
func (e *CompilerError) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"kind":        string(e.Kind),
		"message":     Truncate(e.Message, MaxDetailsExcerpt),
		"recoverable": e.Recoverable,
	}
	if e.Details != "" {
		f["details"] = Truncate(e.Details, MaxDetailsExcerpt)
	}
	if e.StatusCode != 0 {
		f["status_code"] = e.StatusCode
	}
	if e.Provider != "" {
		f["provider"] = e.Provider
	}
	if e.RetryAfter > 0 {
		f["retry_after"] = e.RetryAfter.Seconds()
	}
	if e.SentinelKind != "" {
		f["sentinel_kind"] = e.SentinelKind
	}
	if len(e.MissingItems) > 0 {
		f["missing_items"] = truncateAll(e.MissingItems)
	}
	if e.InvalidReason != "" {
		f["invalid_reason"] = Truncate(e.InvalidReason, MaxDetailsExcerpt)
	}
	if e.SchemaPath != "" {
		f["schema_path"] = e.SchemaPath
	}
	if len(e.ValidationErrors) > 0 {
		f["validation_errors"] = truncateAll(e.ValidationErrors)
	}
	if e.Location != "" {
		f["location"] = e.Location
	}
	if e.CodeSnippet != "" {
		f["code_snippet"] = Truncate(e.CodeSnippet, MaxDetailsExcerpt)
	}
	if e.Count != 0 {
		f["count"] = e.Count
	}
	if e.Snippet != "" {
		f["snippet"] = Truncate(e.Snippet, MaxDetailsExcerpt)
	}
	return f
}

// ==========================
// 3. Error Constructors
// ==========================

// NewTimeoutError creates a recoverable transport timeout.
func NewTimeoutError(provider string, err error) *CompilerError {
	e := &CompilerError{
		Kind:        KindTimeout,
		Message:     "model request timed out",
		Provider:    provider,
		Recoverable: true,
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// NewAPIError creates a transport error for a non-success HTTP status. 5xx
// responses are recoverable, everything else is not.
func NewAPIError(statusCode int, provider, details string) *CompilerError {
	kind := KindClientError
	if statusCode >= 500 {
		kind = KindServerError
	}
	return &CompilerError{
		Kind:        kind,
		Message:     fmt.Sprintf("model API returned status %d", statusCode),
		Details:     details,
		StatusCode:  statusCode,
		Provider:    provider,
		Recoverable: kind == KindServerError,
		Timestamp:   time.Now().UTC(),
	}
}

// NewConnectionError reports a request that never got an HTTP response. It
// is treated like a server error.
func NewConnectionError(provider string, err error) *CompilerError {
	e := &CompilerError{
		Kind:        KindServerError,
		Message:     "model API unreachable",
		Provider:    provider,
		Recoverable: true,
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// NewRateLimitError creates a recoverable rate limit error. retryAfter is zero
// when the provider did not send one.
func NewRateLimitError(provider string, retryAfter time.Duration, details string) *CompilerError {
	return &CompilerError{
		Kind:        KindRateLimit,
		Message:     "model API rate limit exceeded",
		Details:     details,
		StatusCode:  429,
		Provider:    provider,
		RetryAfter:  retryAfter,
		Recoverable: true,
		Timestamp:   time.Now().UTC(),
	}
}

func NewEmptyResponseError() *CompilerError {
	return &CompilerError{
		Kind:      KindEmptyResponse,
		Message:   "model returned an empty response",
		Timestamp: time.Now().UTC(),
	}
}

func NewNoJSONFoundError() *CompilerError {
	return &CompilerError{
		Kind:      KindNoJSONFound,
		Message:   "no JSON object found in model response",
		Timestamp: time.Now().UTC(),
	}
}

// NewMultipleArtifactsError reports count JSON documents where one was expected.
func NewMultipleArtifactsError(count int) *CompilerError {
	return &CompilerError{
		Kind:      KindMultipleArtifacts,
		Message:   fmt.Sprintf("expected exactly one JSON artifact, found %d", count),
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

// NewExplanatoryTextError reports prose around the JSON candidate.
func NewExplanatoryTextError(snippet string) *CompilerError {
	return &CompilerError{
		Kind:      KindExplanatoryText,
		Message:   "model response contains explanatory text outside the JSON artifact",
		Details:   snippet,
		Snippet:   snippet,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidJSONError reports a candidate that does not decode.
func NewInvalidJSONError(err error) *CompilerError {
	e := &CompilerError{
		Kind:      KindInvalidJSON,
		Message:   "extracted artifact is not valid JSON",
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// NewCodeInOutputError reports source code found at location.
func NewCodeInOutputError(location, snippet string) *CompilerError {
	return &CompilerError{
		Kind:        KindCodeInOutput,
		Message:     fmt.Sprintf("source code detected at %s", location),
		Details:     Truncate(snippet, MaxDetailsExcerpt),
		Location:    location,
		CodeSnippet: snippet,
		Timestamp:   time.Now().UTC(),
	}
}

// NewSchemaViolationError reports validation failures against schemaPath.
func NewSchemaViolationError(schemaPath string, violations []string) *CompilerError {
	return &CompilerError{
		Kind:             KindSchemaViolation,
		Message:          fmt.Sprintf("artifact does not conform to schema %s", schemaPath),
		Details:          strings.Join(violations, "; "),
		SchemaPath:       schemaPath,
		ValidationErrors: violations,
		Timestamp:        time.Now().UTC(),
	}
}

// NewSchemaNotFoundError reports a schema that could not be loaded. It is a
// configuration problem, not a model failure.
func NewSchemaNotFoundError(schemaPath string, err error) *CompilerError {
	e := &CompilerError{
		Kind:       KindSchemaNotFound,
		Message:    fmt.Sprintf("schema %s could not be loaded", schemaPath),
		SchemaPath: schemaPath,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// NewMissingInformationError wraps a missing_information sentinel. The details
// string is kept whole as the only missing item.
func NewMissingInformationError(details string) *CompilerError {
	msg := details
	if msg == "" {
		msg = "model reported missing information"
	}
	e := &CompilerError{
		Kind:         KindMissingInformation,
		Message:      msg,
		Details:      details,
		SentinelKind: SentinelMissingInformation,
		Timestamp:    time.Now().UTC(),
	}
	if details != "" {
		e.MissingItems = []string{details}
	}
	return e
}

// NewInvalidRequestError wraps an invalid_request sentinel.
func NewInvalidRequestError(details string) *CompilerError {
	return &CompilerError{
		Kind:          KindInvalidRequest,
		Message:       "model rejected the request as invalid",
		Details:       details,
		InvalidReason: details,
		SentinelKind:  SentinelInvalidRequest,
		Timestamp:     time.Now().UTC(),
	}
}

// NewUnknownSentinelError wraps a sentinel whose error value is not recognized.
func NewUnknownSentinelError(sentinelKind, details string) *CompilerError {
	return &CompilerError{
		Kind:         KindUnknownSentinel,
		Message:      fmt.Sprintf("model reported failure %q", sentinelKind),
		Details:      details,
		SentinelKind: sentinelKind,
		Timestamp:    time.Now().UTC(),
	}
}

func NewInternalError(err error) *CompilerError {
	e := &CompilerError{
		Kind:      KindInternal,
		Message:   "unexpected error",
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// ==========================
// 4. Normalization & Categories
// ==========================

// AsCompilerError returns err as a *CompilerError. Deadline and network
// timeouts become timeout errors; context cancellation is returned as-is with
// ok=false so callers can stop without classifying it.
func AsCompilerError(err error) (ce *CompilerError, ok bool) {
	if err == nil {
		return nil, false
	}
	if stderrors.As(err, &ce) {
		return ce, true
	}
	if stderrors.Is(err, context.Canceled) {
		return nil, false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("", err), true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("", err), true
	}
	return NewInternalError(err), true
}

// IsKind reports whether err is a *CompilerError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CompilerError
	return stderrors.As(err, &ce) && ce.Kind == kind
}

// GetErrorCategory returns the taxonomy family for kind.
func GetErrorCategory(kind ErrorKind) string {
	switch kind {
	case KindTimeout, KindServerError, KindClientError, KindRateLimit:
		return "transport"
	case KindEmptyResponse, KindNoJSONFound, KindMultipleArtifacts, KindExplanatoryText, KindInvalidJSON:
		return "extraction"
	case KindCodeInOutput, KindSchemaViolation:
		return "validation"
	case KindSchemaNotFound:
		return "configuration"
	case KindMissingInformation, KindInvalidRequest, KindUnknownSentinel:
		return "sentinel"
	default:
		return "internal"
	}
}

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func truncateAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = Truncate(s, MaxDetailsExcerpt)
	}
	return out
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
