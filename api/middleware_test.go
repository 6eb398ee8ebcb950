package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTenantTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantContext())
	router.GET("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tenant_id": c.GetString(ContextTenantID),
			"kb_id":     c.GetString(ContextKBID),
			"user_id":   c.GetString(ContextUserID),
		})
	})
	return router
}

func TestTenantContextRejectsMissingTenant(t *testing.T) {
	router := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), HeaderTenantID)
}

func TestTenantContextDefaultsKBAndUser(t *testing.T) {
	router := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderTenantID, "tenant-a")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"tenant_id":"tenant-a"`)
	require.Contains(t, w.Body.String(), `"kb_id":"default"`)
	require.Contains(t, w.Body.String(), `"user_id":"anonymous"`)
}

func TestTenantContextPassesExplicitScope(t *testing.T) {
	router := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderTenantID, "tenant-b")
	req.Header.Set(HeaderKBID, "kb-9")
	req.Header.Set(HeaderUserID, "user-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"kb_id":"kb-9"`)
	require.Contains(t, w.Body.String(), `"user_id":"user-42"`)
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// 未携带时自动生成
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// 已携带时原样透传
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS())
	router.POST("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderTenantID)
}
