package httpapi

import (
	"errors"
	"net/http"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/router"
)

// statusForKind maps a stable error kind to the HTTP status the
// boundary reports it under.
func statusForKind(kind engine.ErrorKind) int {
	switch kind {
	case engine.ErrInvalidRequest, engine.ErrMissingInput, engine.ErrTemplateInvalid,
		engine.ErrUnknownModel, engine.ErrUnknownDeployment:
		return http.StatusBadRequest
	case engine.ErrAuthFailed:
		return http.StatusUnauthorized
	case engine.ErrRateLimited:
		return http.StatusTooManyRequests
	case engine.ErrContextWindowExceed, engine.ErrContentFiltered:
		return http.StatusUnprocessableEntity
	case engine.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case engine.ErrToolBudgetExceeded:
		return http.StatusUnprocessableEntity
	case engine.ErrCancelled:
		return 499 // client closed request, nginx/envoy convention
	default:
		return http.StatusInternalServerError
	}
}

// classify turns any error the request pipeline can surface into the
// uniform {kind, message, provider?, model?} shape and its HTTP status.
func classify(err error, requestID string) (ErrorResponse, int) {
	var runErr *engine.RunError
	if errors.As(err, &runErr) {
		status := statusForKind(runErr.Kind)
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(runErr.Kind),
			Message:   runErr.Message,
			Provider:  runErr.Provider,
			Model:     runErr.Model,
			RequestID: requestID,
		}}, status
	}

	var missingInput *assembler.ErrMissingInput
	if errors.As(err, &missingInput) {
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(engine.ErrMissingInput),
			Message:   err.Error(),
			RequestID: requestID,
		}}, http.StatusBadRequest
	}

	var unknownTool *assembler.ErrUnknownHostedTool
	if errors.As(err, &unknownTool) {
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(engine.ErrInvalidRequest),
			Message:   err.Error(),
			RequestID: requestID,
		}}, http.StatusBadRequest
	}

	var noDeployment *assembler.ErrDeploymentNotFound
	if errors.As(err, &noDeployment) {
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(engine.ErrUnknownDeployment),
			Message:   err.Error(),
			RequestID: requestID,
		}}, http.StatusBadRequest
	}

	var noRun *assembler.ErrRunNotFound
	if errors.As(err, &noRun) {
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(engine.ErrInvalidRequest),
			Message:   err.Error(),
			RequestID: requestID,
		}}, http.StatusBadRequest
	}

	if errors.Is(err, router.ErrNoCandidates) {
		return ErrorResponse{Error: ErrorBody{
			Kind:      string(engine.ErrProviderUnavailable),
			Message:   err.Error(),
			RequestID: requestID,
		}}, http.StatusServiceUnavailable
	}

	return ErrorResponse{Error: ErrorBody{
		Kind:      string(engine.ErrInternal),
		Message:   err.Error(),
		RequestID: requestID,
	}}, http.StatusInternalServerError
}
