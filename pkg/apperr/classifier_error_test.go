package apperr

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
		wantField  any
	}{
		{"bad request", BadRequest("invalid JSON body"), CodeBadRequest, http.StatusBadRequest, nil},
		{"invalid input", InvalidInput("actual_category", "unknown category"), CodeInvalidInput, http.StatusBadRequest, "actual_category"},
		{"missing field", MissingField("app_name"), CodeMissingField, http.StatusBadRequest, "app_name"},
		{"internal", Internal(""), CodeInternalError, http.StatusInternalServerError, nil},
		{"rate limited", RateLimited(time.Minute), CodeRateLimited, http.StatusTooManyRequests, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
			if tt.wantField != nil {
				assert.Equal(t, tt.wantField, tt.err.Details["field"])
			}
		})
	}

	assert.Equal(t, "internal server error", Internal("").Message)
	assert.Equal(t, 60, RateLimited(time.Minute).Details["retry_after"])
}

func TestAppError_WrapAndDetails(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := BadRequest("invalid JSON body").WithError(cause).WithDetail("offset", 12)

	assert.Equal(t, "[BAD_REQUEST] invalid JSON body: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 12, err.Details["offset"])

	var appErr *AppError
	require.ErrorAs(t, error(err), &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)

	assert.Equal(t, "[MISSING_FIELD] missing required field: app_name", MissingField("app_name").Error())

	// Fresh values per call, so details never leak between requests
	a, b := RateLimited(time.Second), RateLimited(time.Second)
	a.WithDetail("ip", "1.2.3.4")
	assert.NotContains(t, b.Details, "ip")
}
