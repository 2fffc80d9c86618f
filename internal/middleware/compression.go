package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, that gets compressed
	MinSize int
	// Level is the gzip level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes are the media types eligible for compression
	CompressibleTypes []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1KB or more.
// Images and thumbnails are already compressed and pass through untouched.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		Level:             gzip.DefaultCompression,
		CompressibleTypes: []string{"application/json", "text/plain"},
	}
}

var gzipWriterPool sync.Pool

func getGzipWriter(w io.Writer, level int) *gzip.Writer {
	if gz, ok := gzipWriterPool.Get().(*gzip.Writer); ok {
		gz.Reset(w)
		return gz
	}
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		gz = gzip.NewWriter(w)
	}
	return gz
}

// gzipResponseWriter buffers up to MinSize bytes before deciding whether
// to compress.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	gz         *gzip.Writer
	buffer     []byte
	statusCode int
	decided    bool
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if !g.decided {
		g.statusCode = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) >= g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	contentType := g.Header().Get("Content-Type")
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide writes the header and flushes the buffer, compressed or not.
func (g *gzipResponseWriter) decide() error {
	g.decided = true
	buffered := g.buffer
	g.buffer = nil

	status := g.statusCode
	if status == 0 {
		status = http.StatusOK
	}

	if len(buffered) >= g.config.MinSize && g.compressible() {
		g.Header().Del("Content-Length")
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")
		g.ResponseWriter.WriteHeader(status)

		g.gz = getGzipWriter(g.ResponseWriter, g.config.Level)
		_, err := g.gz.Write(buffered)
		return err
	}

	g.ResponseWriter.WriteHeader(status)
	if len(buffered) == 0 {
		return nil
	}
	_, err := g.ResponseWriter.Write(buffered)
	return err
}

func (g *gzipResponseWriter) close() error {
	if !g.decided {
		if err := g.decide(); err != nil {
			return err
		}
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	gzipWriterPool.Put(g.gz)
	g.gz = nil
	return err
}

// Compression returns a middleware that gzips eligible responses for
// clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{ResponseWriter: w, config: config}
			defer func() {
				_ = gzw.close()
			}()

			next.ServeHTTP(gzw, r)
		})
	}
}
