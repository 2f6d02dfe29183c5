package web

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedCORS   bool
	}{
		{
			name:           "No origin header - should pass through",
			method:         "GET",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Valid subdomain origin - GET request",
			method:         "GET",
			origin:         "https://app.example.com",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Valid main domain origin",
			method:         "GET",
			origin:         "https://example.com",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Second configured suffix",
			method:         "GET",
			origin:         "http://localhost:5173",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Valid subdomain origin - OPTIONS preflight",
			method:         "OPTIONS",
			origin:         "https://app.example.com",
			expectedStatus: http.StatusNoContent,
			expectedCORS:   true,
		},
		{
			name:           "Invalid origin - OPTIONS preflight",
			method:         "OPTIONS",
			origin:         "https://evil.com",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Invalid origin - GET request",
			method:         "GET",
			origin:         "https://evil.com",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid subdomain of different domain",
			method:         "GET",
			origin:         "https://example.com.evil.com",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Domain that contains the suffix but is not subdomain",
			method:         "GET",
			origin:         "https://notexample.com",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Case insensitive domain matching",
			method:         "GET",
			origin:         "https://App.EXAMPLE.com",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Invalid origin with malformed URL",
			method:         "GET",
			origin:         "not-a-valid-url",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(newCORSMiddleware([]string{"Example.com", " localhost "}))
			router.Any("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch")
			if tt.expectedCORS {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestAllowCORSDisabledWithoutSuffixes(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	router := gin.New()
	router.Use(newCORSMiddleware(nil))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	router := gin.New()
	router.Use(requestID)
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDHeader))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	require.Equal(t, "abc-123", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	generated := w.Header().Get(requestIDHeader)
	require.Len(t, generated, 36)
	require.Equal(t, generated, w.Body.String())
}
