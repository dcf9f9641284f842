package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatstack/chat-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testingResolver() *TokenResolver {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	return NewTokenResolver(&cfg)
}

func prodResolver() *TokenResolver {
	cfg := config.DefaultConfig()
	return NewTokenResolver(&cfg)
}

func TestResolve_TestingModeTokenIsUserID(t *testing.T) {
	id, err := testingResolver().Resolve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
}

func TestResolve_TestingModeEmptyTokenRejected(t *testing.T) {
	_, err := testingResolver().Resolve(context.Background(), "")
	require.Error(t, err)
}

func TestResolve_ProdModeWithoutOIDCRejects(t *testing.T) {
	_, err := prodResolver().Resolve(context.Background(), "alice")
	require.Error(t, err)
}

func authedRouter(auth gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c), "hasUser": HasUser(c)})
	})
	return router
}

func TestAuthMiddleware_MissingHeaderIs401(t *testing.T) {
	router := authedRouter(AuthMiddleware(testingResolver(), nil))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_NonBearerHeaderIs401(t *testing.T) {
	router := authedRouter(AuthMiddleware(testingResolver(), nil))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ValidTokenSetsUser(t *testing.T) {
	provisioned := ""
	provision := func(ctx context.Context, id Identity) { provisioned = id.UserID }
	router := authedRouter(AuthMiddleware(testingResolver(), provision))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":"alice"`)
	assert.Equal(t, "alice", provisioned)
}

func TestOptionalAuthMiddleware_AnonymousPassesThrough(t *testing.T) {
	router := authedRouter(OptionalAuthMiddleware(testingResolver(), nil))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hasUser":false`)
}

func TestOptionalAuthMiddleware_BadTokenStillRejected(t *testing.T) {
	router := authedRouter(OptionalAuthMiddleware(prodResolver(), nil))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
