package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeTier        ErrorType = "unknown_tier"
	ErrorTypeEligibility ErrorType = "no_eligible_provider"
	ErrorTypeBudget      ErrorType = "budget_exceeded"
	ErrorTypeProvider    ErrorType = "provider"
	ErrorTypeExhausted   ErrorType = "all_providers_failed"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Configuration Errors
	ErrInvalidConfig      = NewDomainError(ErrorTypeConfig, "invalid orchestrator configuration", nil)
	ErrDuplicateProvider  = NewDomainError(ErrorTypeConfig, "provider identifier already registered", nil)
	ErrUnknownProviderRef = NewDomainError(ErrorTypeConfig, "configuration references unknown provider", nil)

	// Not Found Errors
	ErrProviderNotFound = NewDomainError(ErrorTypeNotFound, "provider not found", nil)
	ErrRequestNotFound  = NewDomainError(ErrorTypeNotFound, "request not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyContent = NewDomainError(ErrorTypeValidation, "request content cannot be empty", nil)

	// Routing Errors
	ErrUnknownTier        = NewDomainError(ErrorTypeTier, "requested SLA tier is not configured", nil)
	ErrNoEligibleProvider = NewDomainError(ErrorTypeEligibility, "no eligible provider for request", nil)
	ErrBudgetExceeded     = NewDomainError(ErrorTypeBudget, "no provider fits the remaining budget", nil)

	// Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeProvider, "provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeProvider, "provider timed out", nil)
	ErrProviderRejected    = NewDomainError(ErrorTypeProvider, "provider rejected the request", nil)

	// Execution Errors
	ErrAllProvidersFailed = NewDomainError(ErrorTypeExhausted, "all candidate providers failed", nil)
	ErrRequestCancelled   = NewDomainError(ErrorTypeCancelled, "request cancelled by caller", nil)

	// Internal Errors
	ErrInternal    = NewDomainError(ErrorTypeInternal, "internal error", nil)
	ErrBatchClosed = NewDomainError(ErrorTypeInternal, "batch window already dispatched", nil)
)

// Error type checking helper functions

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConfig
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsTierError checks if an error is an unknown-tier error
func IsTierError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeTier
	}
	return false
}

// IsEligibilityError checks if an error is a no-eligible-provider error
func IsEligibilityError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeEligibility
	}
	return false
}

// IsBudgetError checks if an error is a budget error
func IsBudgetError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeBudget
	}
	return false
}

// IsProviderError checks if an error is a provider error
func IsProviderError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeProvider
	}
	return false
}

// IsExhaustedError checks if an error means every candidate provider failed
func IsExhaustedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExhausted
	}
	return false
}

// IsCancelledError checks if an error is a caller-cancellation error
func IsCancelledError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeCancelled
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapProvider wraps an error as a provider error
func WrapProvider(message string, err error) error {
	return NewDomainError(ErrorTypeProvider, message, err)
}
