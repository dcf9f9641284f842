package huggingface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{
		apiKey:     "test-key",
		model:      "test-model",
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGenerate_ChatCompletionShape(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi there"}}]}`))
	})

	text, err := client.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestGenerate_LegacyGeneratedTextShape(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"generated_text":"legacy reply"}]`))
	})

	text, err := client.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "legacy reply", text)
}

func TestGenerate_SummaryShape(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary_text":"a summary"}`))
	})

	text, err := client.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "a summary", text)
}

func TestGenerate_RawBodyFallback(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text reply"))
	})

	text, err := client.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "plain text reply", text)
}

func TestGenerate_UpstreamErrorStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model overloaded"}`))
	})

	_, err := client.Generate(context.Background(), "Hello")
	var upstream *registryinference.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Contains(t, upstream.Detail, "model overloaded")
}

func TestGenerate_ConnectionFailure(t *testing.T) {
	client := &Client{
		apiKey:     "test-key",
		model:      "test-model",
		baseURL:    "http://127.0.0.1:1",
		httpClient: &http.Client{Timeout: time.Second},
	}

	_, err := client.Generate(context.Background(), "Hello")
	var upstream *registryinference.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 0, upstream.StatusCode)
}

func TestGenerate_EmptyBodyIsUpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Generate(context.Background(), "Hello")
	var upstream *registryinference.UpstreamError
	require.ErrorAs(t, err, &upstream)
}
