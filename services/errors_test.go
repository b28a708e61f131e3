package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	t.Run("without wrapped error", func(t *testing.T) {
		err := NewDomainError(ErrorTypeBudget, "no provider fits the budget", nil)
		assert.Equal(t, "budget_exceeded: no provider fits the budget", err.Error())
	})

	t.Run("with wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := NewDomainError(ErrorTypeProvider, "provider call failed", inner)
		assert.Contains(t, err.Error(), "provider call failed")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestDomainError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := NewDomainError(ErrorTypeInternal, "wrapper", inner)
	assert.Equal(t, inner, errors.Unwrap(err))
}

func TestDomainError_Is(t *testing.T) {
	t.Run("matches same type", func(t *testing.T) {
		err := NewDomainError(ErrorTypeBudget, "custom budget message", nil)
		assert.ErrorIs(t, err, ErrBudgetExceeded)
	})

	t.Run("does not match different type", func(t *testing.T) {
		err := NewDomainError(ErrorTypeTier, "unknown tier", nil)
		assert.NotErrorIs(t, err, ErrBudgetExceeded)
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", NewDomainError(ErrorTypeExhausted, "everything failed", nil))
		assert.ErrorIs(t, err, ErrAllProvidersFailed)
	})
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeEligibility, "empty candidate set", nil).
		WithDetail("tier", "premium").
		WithDetail("language", "go")

	details := GetErrorDetails(err)
	assert.Equal(t, "premium", details["tier"])
	assert.Equal(t, "go", details["language"])
}

func TestErrorTypeCheckers(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		checker func(error) bool
	}{
		{"config", ErrInvalidConfig, IsConfigError},
		{"not found", ErrProviderNotFound, IsNotFoundError},
		{"validation", ErrEmptyContent, IsValidationError},
		{"tier", ErrUnknownTier, IsTierError},
		{"eligibility", ErrNoEligibleProvider, IsEligibilityError},
		{"budget", ErrBudgetExceeded, IsBudgetError},
		{"provider", ErrProviderTimeout, IsProviderError},
		{"exhausted", ErrAllProvidersFailed, IsExhaustedError},
		{"cancelled", ErrRequestCancelled, IsCancelledError},
		{"internal", ErrInternal, IsInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.checker(tc.err))
			assert.False(t, tc.checker(errors.New("plain error")))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeBudget, GetErrorType(ErrBudgetExceeded))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestWrapHelpers(t *testing.T) {
	inner := errors.New("db down")

	err := WrapInternal("archive failed", inner)
	assert.True(t, IsInternalError(err))
	assert.ErrorIs(t, err, inner)

	err = WrapProvider("backend 500", inner)
	assert.True(t, IsProviderError(err))

	err = WrapError(ErrorTypeCancelled, "gone", inner)
	assert.True(t, IsCancelledError(err))
}
