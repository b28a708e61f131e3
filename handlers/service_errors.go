package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Thin handler pattern: services return typed errors, the mapping lives here.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsTierError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write tier error response", zap.Error(err))
		}

	case services.IsEligibilityError(err):
		if err := utils.WriteUnprocessable(w, err.Error(), details); err != nil {
			logger.Error("failed to write eligibility error response", zap.Error(err))
		}

	case services.IsBudgetError(err):
		if err := utils.WritePaymentRequired(w, err.Error(), details); err != nil {
			logger.Error("failed to write budget error response", zap.Error(err))
		}

	case services.IsExhaustedError(err):
		// Every candidate failed: the backend tier is unavailable
		if err := utils.WriteServiceUnavailable(w, err.Error(), details); err != nil {
			logger.Error("failed to write exhausted error response", zap.Error(err))
		}

	case services.IsCancelledError(err):
		if err := utils.WriteConflict(w, err.Error(), details); err != nil {
			logger.Error("failed to write cancelled error response", zap.Error(err))
		}

	case services.IsProviderError(err):
		if err := utils.WriteBadGateway(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsConfigError(err), services.IsInternalError(err):
		// Log internals but return a generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
