package kizeo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(&Config{BaseURL: server.URL, Token: "secret-token"}, logger)
}

func TestFetch(t *testing.T) {
	t.Run("media download", func(t *testing.T) {
		var gotPath, gotAuth string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte("jpeg-bytes"))
		})

		data, err := client.Fetch(context.Background(), 1, 100, "p1.jpg")
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		assert.Equal(t, "/forms/1/data/100/medias/p1.jpg", gotPath)
		assert.Equal(t, "secret-token", gotAuth)
	})

	t.Run("empty media name fetches pdf export", func(t *testing.T) {
		var gotPath string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte("%PDF"))
		})

		data, err := client.Fetch(context.Background(), 2, 200, "")
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), data)
		assert.Equal(t, "/forms/2/data/200/pdf", gotPath)
	})

	t.Run("media name is path escaped", func(t *testing.T) {
		var gotEscaped string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotEscaped = r.URL.EscapedPath()
			w.Write([]byte("ok"))
		})

		_, err := client.Fetch(context.Background(), 1, 100, "photo 1.jpg")
		require.NoError(t, err)
		assert.Equal(t, "/forms/1/data/100/medias/photo%201.jpg", gotEscaped)
	})

	t.Run("4xx wraps fetch error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := client.Fetch(context.Background(), 1, 100, "missing.jpg")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("5xx wraps fetch error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.Fetch(context.Background(), 1, 100, "p1.jpg")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
	})

	t.Run("connection failure wraps fetch error", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		client := NewClient(&Config{BaseURL: "http://127.0.0.1:1", Token: "t"}, logger)

		_, err := client.Fetch(context.Background(), 1, 100, "p1.jpg")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
	})
}
