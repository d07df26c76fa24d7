package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpersWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	TooManyRequests(rec, "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
}

func TestResponseError(t *testing.T) {
	resp := func(code int, body string) *http.Response {
		return &http.Response{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}

	assert.NoError(t, ResponseError(resp(http.StatusOK, "")))

	err := ResponseError(resp(http.StatusNotFound, `{"code":404,"message":"no pending note"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pending note")

	err = ResponseError(resp(http.StatusBadGateway, "upstream down\n"))
	assert.EqualError(t, err, "Bad Gateway: upstream down")

	assert.EqualError(t, ResponseError(resp(http.StatusInternalServerError, "")), "Internal Server Error")
}
