package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// compressibleTypes covers every payload the API serves: JSON bodies,
// CSV exports, and markdown reports.
var compressibleTypes = []string{
	"application/json",
	"text/csv",
	"text/markdown",
	"text/plain",
}

// Compressor provides gzip response compression with pooled writers.
type Compressor struct {
	level int
	pool  sync.Pool
}

// NewCompressor creates a compressor at the given gzip level.
func NewCompressor(level int) *Compressor {
	c := &Compressor{level: level}
	c.pool = sync.Pool{
		New: func() interface{} {
			gz, _ := gzip.NewWriterLevel(io.Discard, level)
			return gz
		},
	}
	return c
}

func compressible(contentType string) bool {
	for _, t := range compressibleTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// Handler returns gin middleware that gzips responses for clients that
// accept it. The decision is deferred until the handler sets a
// Content-Type, so only compressible payloads are encoded.
func (c *Compressor) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(ctx.GetHeader("Accept-Encoding"), "gzip") {
			ctx.Next()
			return
		}

		wrapper := &gzipResponseWriter{ResponseWriter: ctx.Writer, comp: c}
		ctx.Writer = wrapper
		defer wrapper.finish()

		ctx.Next()
	}
}

// gzipResponseWriter defers the compress-or-not decision until the first
// write, when the Content-Type is known.
type gzipResponseWriter struct {
	gin.ResponseWriter
	comp     *Compressor
	gz       *gzip.Writer
	decided  bool
	compress bool
}

func (w *gzipResponseWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true

	if !compressible(w.Header().Get("Content-Type")) {
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.Header().Del("Content-Length")

	w.gz = w.comp.pool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	w.compress = true
}

// WriteHeader is intentionally not overridden. Gin records the status
// eagerly but emits headers on the first body write, and render helpers
// set the status before the Content-Type. Deciding in Write is the only
// point where the Content-Type is reliably present.

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.decide()
	if w.compress {
		return w.gz.Write(data)
	}
	return w.ResponseWriter.Write(data)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) finish() {
	if !w.compress {
		return
	}
	w.gz.Close()
	w.comp.pool.Put(w.gz)
	w.gz = nil
}
