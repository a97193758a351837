package provider

import (
	"errors"
	"strings"
)

// FailoverReason classifies why a provider Attempt failed, driving both
// the Router's retry/failover decision and the Run Engine's terminal
// FailureKind when every Attempt is exhausted.
//
// This is the single classifier for the whole process: earlier revisions
// of this codebase classified errors once in the provider layer and
// again in the Router, which could disagree on the same error. Both now
// call ClassifyError.
type FailoverReason string

const (
	ReasonRateLimited    FailoverReason = "rate_limited"
	ReasonOverloaded     FailoverReason = "overloaded"
	ReasonBadRequest     FailoverReason = "bad_request"
	ReasonAuthFailed     FailoverReason = "auth_failed"
	ReasonContextWindow  FailoverReason = "context_window_exceeded"
	ReasonContentFilter  FailoverReason = "content_filtered"
	ReasonTimeout        FailoverReason = "timeout"
	ReasonNetwork        FailoverReason = "network"
	ReasonInternal       FailoverReason = "internal"
)

// IsRetryable reports whether the same (provider, model) pair may be
// retried after a backoff, as opposed to requiring failover to a
// different pair.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimited, ReasonOverloaded, ReasonTimeout, ReasonNetwork:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the Router should move to the next
// Attempt in the ordered list rather than retry the same one.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case ReasonBadRequest, ReasonContentFilter:
		return false
	default:
		return true
	}
}

// Error is a classified provider failure, returned by an Adapter on a
// terminal Chunk.
type Error struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified error for provider/model wrapping cause.
func NewError(reason FailoverReason, provider, model string, cause error) *Error {
	return &Error{Reason: reason, Provider: provider, Model: model, Cause: cause}
}

func (e *Error) WithStatus(status int) *Error    { e.Status = status; return e }
func (e *Error) WithCode(code string) *Error     { e.Code = code; return e }
func (e *Error) WithRequestID(id string) *Error  { e.RequestID = id; return e }
func (e *Error) WithMessage(msg string) *Error    { e.Message = msg; return e }

// ClassifyError turns a raw SDK/HTTP error into a classified *Error. An
// error that already is (or wraps) a *Error is returned as is; anything
// else is classified by string matching against the error text, since
// not every provider SDK surfaces a structured status.
func ClassifyError(providerName, model string, err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	msg := strings.ToLower(err.Error())
	reason := classifyMessage(msg)
	return NewError(reason, providerName, model, err).WithMessage(err.Error())
}

func classifyMessage(msg string) FailoverReason {
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ReasonRateLimited
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "503"), strings.Contains(msg, "service unavailable"):
		return ReasonOverloaded
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ReasonAuthFailed
	case strings.Contains(msg, "context length"), strings.Contains(msg, "context_length_exceeded"), strings.Contains(msg, "maximum context"):
		return ReasonContextWindow
	case strings.Contains(msg, "content filter"), strings.Contains(msg, "content_filter"), strings.Contains(msg, "safety"):
		return ReasonContentFilter
	case strings.Contains(msg, "invalid request"), strings.Contains(msg, "400"):
		return ReasonBadRequest
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "eof"):
		return ReasonNetwork
	default:
		return ReasonInternal
	}
}

// ClassifyStatusCode maps an HTTP status code to a FailoverReason,
// preferred over message matching whenever the caller has a real status.
func ClassifyStatusCode(status int) FailoverReason {
	switch {
	case status == 401 || status == 403:
		return ReasonAuthFailed
	case status == 429:
		return ReasonRateLimited
	case status == 400 || status == 422:
		return ReasonBadRequest
	case status == 503:
		return ReasonOverloaded
	case status >= 500:
		return ReasonInternal
	default:
		return ReasonInternal
	}
}

// IsProviderError reports whether err is (or wraps) a classified *Error.
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// GetError extracts the classified *Error from err, if any.
func GetError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
