// Package sentinel recognizes the explicit failure object a model emits
// instead of an artifact:
//
//	{"error": "missing_information", "details": "..."}
//	{"error": "invalid_request", "details": "..."}
package sentinel

import (
	"fmt"

	"artifact-compiler/internal/common/errors"
)

const (
	ErrorKey   = "error"
	DetailsKey = "details"
)

// Parse returns the sentinel failure carried by decoded, or nil when decoded
// is not a sentinel. Any mapping with an "error" key is a sentinel.
func Parse(decoded interface{}) *errors.CompilerError {
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := obj[ErrorKey]
	if !ok {
		return nil
	}

	kind := stringify(raw)
	details := stringify(obj[DetailsKey])

	switch kind {
	case errors.SentinelMissingInformation:
		return errors.NewMissingInformationError(details)
	case errors.SentinelInvalidRequest:
		return errors.NewInvalidRequestError(details)
	default:
		return errors.NewUnknownSentinelError(kind, details)
	}
}

// IsSentinel reports whether decoded carries an "error" key.
func IsSentinel(decoded interface{}) bool {
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = obj[ErrorKey]
	return ok
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
