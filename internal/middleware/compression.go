package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// Responses below this size skip compression; the gzip framing would
// cost more than it saves.
const gzipMinSize = 1024

// Compression negotiates gzip for the JSON responses this API serves.
// The metrics endpoint handles its own encoding and is left alone.
func Compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") ||
			c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		gz := gzip.NewWriter(c.Writer)
		gw := &gzipWriter{ResponseWriter: c.Writer, gz: gz}

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = gw

		c.Next()

		if gw.compressed {
			gz.Close()
		}
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz         *gzip.Writer
	compressed bool
	plain      bool
}

// Write lets a small first chunk through uncompressed. The first chunk
// decides the mode for the rest of the body; headers are already on
// the wire after it.
func (w *gzipWriter) Write(data []byte) (int, error) {
	if w.plain {
		return w.ResponseWriter.Write(data)
	}
	if !w.compressed && len(data) < gzipMinSize {
		w.Header().Del("Content-Encoding")
		w.plain = true
		return w.ResponseWriter.Write(data)
	}
	w.compressed = true
	return w.gz.Write(data)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
