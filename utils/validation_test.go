package utils

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleBody struct {
	Content string  `validate:"required"`
	Task    string  `validate:"omitempty,oneof=completion analysis"`
	Budget  float64 `validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&sampleBody{Content: "hi", Task: "analysis"}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&sampleBody{})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "Content is required", fields["Content"])
	})

	t.Run("oneof violation", func(t *testing.T) {
		err := ValidateStruct(&sampleBody{Content: "hi", Task: "poetry"})
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields["Task"], "must be one of")
	})

	t.Run("gte violation", func(t *testing.T) {
		err := ValidateStruct(&sampleBody{Content: "hi", Budget: -1})
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields["Budget"], "greater than or equal to")
	})
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID(uuid.New().String()))
	assert.Error(t, ValidateUUID("not-a-uuid"))
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("value", "name"))

	err := ValidateRequired("", "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}
