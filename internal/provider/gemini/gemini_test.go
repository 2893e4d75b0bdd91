package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/provider"
)

func newTestCaller(t *testing.T, handler http.HandlerFunc) *Caller {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "test-key", Model: "gemini-1.5-flash", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestCallParsesCandidateText(t *testing.T) {
	t.Parallel()

	c := newTestCaller(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.URL.Path, "models/gemini-1.5-flash:generateContent")
		require.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Equal(t, "analyze this site", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.SystemInstruction)

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]string{{"text": "# SEO Report\n"}, {"text": "All good."}},
				},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	out, err := c.Call(
		context.Background(),
		analysis.Prompt{System: "You are an SEO expert.", User: "analyze this site"},
		analysis.Constraints{},
	)
	require.NoError(t, err)
	require.Equal(t, "# SEO Report\nAll good.", out)
}

func TestCallRateLimited(t *testing.T) {
	t.Parallel()

	c := newTestCaller(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Call(context.Background(), analysis.Prompt{User: "hi"}, analysis.Constraints{})
	var callErr *provider.CallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, analysis.FailureRateLimited, callErr.Kind)
}

func TestCallMalformedBody(t *testing.T) {
	t.Parallel()

	c := newTestCaller(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.Call(context.Background(), analysis.Prompt{User: "hi"}, analysis.Constraints{})
	var callErr *provider.CallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, analysis.FailureInvalidResponse, callErr.Kind)
}

func TestCallNoCandidates(t *testing.T) {
	t.Parallel()

	c := newTestCaller(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	})

	_, err := c.Call(context.Background(), analysis.Prompt{User: "hi"}, analysis.Constraints{})
	var callErr *provider.CallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, analysis.FailureInvalidResponse, callErr.Kind)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}
