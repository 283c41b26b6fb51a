package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse("whisper", response(http.StatusOK, "{}")))
	assert.NoError(t, CheckResponse("whisper", response(http.StatusNoContent, "")))

	err := CheckResponse("whisper", response(http.StatusTooManyRequests, " slow down \n"))
	require.Error(t, err)
	assert.Equal(t, "whisper API error 429: slow down", err.Error())
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(fmt.Errorf("wrapped: %w", err)))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())
}

func TestCheckResponse_TruncatesBody(t *testing.T) {
	err := CheckResponse("images", response(http.StatusBadRequest, strings.Repeat("x", 2*maxErrorBody)))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody)
	assert.False(t, apiErr.Retryable())
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	assert.True(t, IsRetryableHTTPStatus(http.StatusTooManyRequests))
	assert.True(t, IsRetryableHTTPStatus(http.StatusBadGateway))
	assert.True(t, IsRetryableHTTPStatus(http.StatusServiceUnavailable))
	assert.False(t, IsRetryableHTTPStatus(http.StatusUnauthorized))
	assert.False(t, IsRetryableHTTPStatus(http.StatusNotFound))
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(fmt.Errorf("dial tcp: refused")))
	assert.Zero(t, StatusCode(nil))
}
