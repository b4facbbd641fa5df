package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) { seen = Value(c) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(headerKey))
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "upstream-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-1", w.Header().Get(headerKey))
}

func TestMiddlewarePropagatesIDToRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) { fromCtx = FromContext(c.Request.Context()) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "upstream-2")
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-2", fromCtx)
	assert.Empty(t, FromContext(req.Context()))
}
