package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(NewCompressor(gzip.DefaultCompression).Handler())
	router.GET("/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"payload": strings.Repeat("x", 2048)})
	})
	router.GET("/csv", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte("a,b,c\n1,2,3\n"))
	})
	router.GET("/binary", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/octet-stream", []byte{0x00, 0x01})
	})
	return router
}

func TestCompressionForAcceptingClients(t *testing.T) {
	router := newCompressedRouter()

	for _, path := range []string{"/json", "/csv"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"), path)

		gz, err := gzip.NewReader(w.Body)
		require.NoError(t, err, path)
		body, err := io.ReadAll(gz)
		require.NoError(t, err, path)
		assert.NotEmpty(t, body, path)
	}
}

func TestNoCompressionWithoutAcceptEncoding(t *testing.T) {
	router := newCompressedRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/json", nil))

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Body.String(), "payload")
}

func TestNoCompressionForBinaryContent(t *testing.T) {
	router := newCompressedRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/binary", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, []byte{0x00, 0x01}, w.Body.Bytes())
}
