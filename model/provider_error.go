package model

import "fmt"

// ProviderErrorKind classifies provider failures into the categories the
// Activity Runtime needs for retry decisions (spec.md §4.5, §7). Grounded
// on runtime/agent/model.ProviderErrorKind, trimmed to the five kinds that
// matter here.
type ProviderErrorKind string

const (
	ProviderErrorKindAuth           ProviderErrorKind = "auth"
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"
	ProviderErrorKindRateLimited    ProviderErrorKind = "rate_limited"
	ProviderErrorKindUnavailable    ProviderErrorKind = "unavailable"
	ProviderErrorKindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError describes a failure returned by a model provider, carrying
// enough structure for callers to classify it without string matching.
type ProviderError struct {
	Provider  string
	Operation string
	HTTP      int
	Kind      ProviderErrorKind
	Message   string
	Cause     error
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "generate"
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("%s %s(%s): %s", e.Provider, e.Kind, op, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }
