package helpers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcdealtracker/pkg/errors"
)

func TestFetchPageReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	body, err := FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ok")
}

func TestFetchPageRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	var te *errors.TrackerError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.ErrorTypeRateLimit, te.Type)
}

func TestFetchPageUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	var te *errors.TrackerError
	assert.False(t, stderrors.As(err, &te))
}
