package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    error
		message string
	}{
		{"missing wishlist", NotFound("wishlist", "abc123"), ErrNotFound, "wishlist not found with id abc123"},
		{"empty claimant", ValidationFailed("claimed_by", "claimant name is required"), ErrValidation, "claimant name is required"},
		{"duplicate id", Conflict("wishlist", "abc123"), ErrConflict, "wishlist conflict with id abc123"},
		{"no key", Unauthorized("missing api key"), ErrUnauthorized, "missing api key"},
	}

	kinds := []error{ErrNotFound, ErrValidation, ErrConflict, ErrUnauthorized}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			for _, k := range kinds {
				assert.Equal(t, k == tt.kind, errors.Is(tt.err, k), "errors.Is(%v)", k)
			}
		})
	}
}

func TestWrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("rename sublist: %w", NotFound("sublist", "7"))

	assert.ErrorIs(t, err, ErrNotFound)

	var appErr *AppError
	if assert.ErrorAs(t, err, &appErr) {
		assert.Equal(t, "sublist not found with id 7", appErr.Message)
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationFailed("order", "order must not be negative")
	assert.Equal(t, "order", err.Field)
	assert.Empty(t, NotFound("item", "1").Field)
}
