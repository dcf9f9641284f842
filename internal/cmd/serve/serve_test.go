package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatstack/chat-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBodyLengthHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	c.String(http.StatusOK, fmt.Sprintf("%d", len(body)))
}

func TestMaxBodySizeMiddleware_AllowsSmallBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(1024))
	router.POST("/echo", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 100)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Body.String())
}

func TestMaxBodySizeMiddleware_RejectsOversizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(1024))
	router.POST("/echo", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 2048)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func startTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.Listener.Port = 0
	cfg.DatastoreType = "memory"
	cfg.InferenceType = "echo"

	ctx := config.WithContext(context.Background(), &cfg)
	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return srv
}

func TestStartServer_HealthAndReady(t *testing.T) {
	srv := startTestServer(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Port)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(base + "/ready")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestStartServer_ChatRoundTrip(t *testing.T) {
	srv := startTestServer(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodPost, base+"/chat",
		strings.NewReader(`{"inputs":"hello","isTemp":false}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user1")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var turn struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversationId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&turn))
	assert.Equal(t, "echo: hello", turn.Response)
	require.NotEmpty(t, turn.ConversationID)

	listReq, err := http.NewRequest(http.MethodGet, base+"/conversations", nil)
	require.NoError(t, err)
	listReq.Header.Set("Authorization", "Bearer user1")
	listResp, err := client.Do(listReq)
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var summaries []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, turn.ConversationID, summaries[0]["conversationId"])
}

func TestStartServer_MetricsExposed(t *testing.T) {
	srv := startTestServer(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Port)

	// Generate at least one observed request before scraping.
	warm, err := http.Get(base + "/health")
	require.NoError(t, err)
	warm.Body.Close()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chat_service_requests_total")
}
