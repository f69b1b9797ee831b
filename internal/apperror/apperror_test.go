package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("issue key: %w", New(KindInsufficientCredits, "reseller bob has no credits"))

	assert.True(t, errors.Is(err, ErrInsufficientCredits))
	assert.False(t, errors.Is(err, ErrUnknownReseller))
}

func TestStorage_WrapsPlainErrors(t *testing.T) {
	assert.NoError(t, Storage("read", nil))

	cause := errors.New("connection reset")
	err := Storage("read resellers", cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.True(t, errors.Is(err, cause))

	// Business failures pass through untouched.
	assert.Same(t, ErrKeyInUse, Storage("verify", ErrKeyInUse))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, KindKeyExpired, From(fmt.Errorf("wrap: %w", ErrKeyExpired)).Kind)
	assert.Equal(t, KindStorageFailure, From(errors.New("boom")).Kind)
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInsufficientCredits, http.StatusBadRequest},
		{KindUnknownReseller, http.StatusNotFound},
		{KindUsernameTaken, http.StatusConflict},
		{KindKeyInUse, http.StatusForbidden},
		{KindInvalidCredentials, http.StatusUnauthorized},
		{KindStorageFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}
