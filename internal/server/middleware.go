package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

const (
	ctxUserIDKey = "userID"
	ctxClaimsKey = "claims"
)

// RequireAuth verifies the bearer token and stores the caller's id and
// claims in the gin context.
func RequireAuth(authn Authenticator, log *logrus.Entry) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := bearerToken(ctx.GetHeader("Authorization"))
		if err != nil {
			respondError(ctx, log, err)
			ctx.Abort()
			return
		}
		claims, err := authn.Verify(ctx.Request.Context(), token)
		if err != nil {
			respondError(ctx, log, err)
			ctx.Abort()
			return
		}
		ctx.Set(ctxUserIDKey, claims.UserID)
		ctx.Set(ctxClaimsKey, claims)
		ctx.Next()
	}
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok && strings.EqualFold(scheme, "Bearer") {
		return "", errors.ErrMissingToken
	}
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.ErrMissingToken
	}
	return token, nil
}

// RequestLogger writes one log line per request; the level follows the status.
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":    ctx.Request.Method,
			"path":      ctx.Request.URL.Path,
			"status":    status,
			"latency":   time.Since(start).String(),
			"client_ip": ctx.ClientIP(),
		})
		if len(ctx.Errors) > 0 {
			entry = entry.WithField("errors", ctx.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

// Recovery turns a panic into a 500 response.
func Recovery(log *logrus.Entry) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(ctx *gin.Context, recovered any) {
		log.WithField("panic", recovered).Error("handler panicked")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": errors.ErrInternalServer.Error()})
	})
}

// CORS lets browser clients on the allowed origins call the API and answers
// preflight requests.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[strings.TrimRight(origin, "/")]) {
			h := ctx.Writer.Header()
			if allowAll {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Content-Encoding, Accept-Encoding")
			h.Set("Access-Control-Max-Age", "600")
		}
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

type gzipBody struct {
	io.Reader
	gz   io.Closer
	body io.Closer
}

func (b *gzipBody) Close() error {
	gzErr := b.gz.Close()
	bodyErr := b.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}

// GzipRequestDecompress transparently inflates request bodies sent with
// Content-Encoding: gzip.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(strings.ToLower(ctx.GetHeader("Content-Encoding")), "gzip") {
			ctx.Next()
			return
		}
		gr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": errors.ErrInvalidGzipRequest.Error()})
			return
		}
		ctx.Request.Body = &gzipBody{Reader: gr, gz: gr, body: ctx.Request.Body}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1
		ctx.Next()
	}
}

// minCompressSize keeps small JSON replies uncompressed.
const minCompressSize = 1024

var compressibleTypes = []string{
	"application/json",
	"application/xml",
	"application/javascript",
	"text/html",
	"text/css",
	"text/plain",
	"text/xml",
	"text/javascript",
}

// gzipWriter buffers the first minCompressSize bytes and switches to gzip
// once the body is known to be large enough and of a compressible type.
type gzipWriter struct {
	gin.ResponseWriter
	gw      *gzip.Writer
	pending bytes.Buffer
	// plain is set once the body is known to go out uncompressed.
	plain bool
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	if w.gw != nil {
		n, err := w.gw.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}

	if w.plain {
		return w.ResponseWriter.Write(data)
	}

	w.pending.Write(data)
	if w.pending.Len() < minCompressSize {
		return len(data), nil
	}
	if !w.compressible() {
		w.plain = true
		_, err := w.ResponseWriter.Write(w.pending.Bytes())
		w.pending.Reset()
		return len(data), err
	}
	w.startGzip()
	if _, err := w.gw.Write(w.pending.Bytes()); err != nil {
		return 0, errors.ErrGzipCompressionFailed
	}
	w.pending.Reset()
	return len(data), nil
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) compressible() bool {
	switch w.ResponseWriter.Status() {
	case http.StatusNoContent, http.StatusNotModified, http.StatusPartialContent:
		return false
	}
	h := w.ResponseWriter.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(h.Get("Content-Type"))
	if ct == "" || strings.HasPrefix(ct, "text/event-stream") {
		return false
	}
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (w *gzipWriter) startGzip() {
	h := w.ResponseWriter.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	w.gw = gzip.NewWriter(w.ResponseWriter)
}

// finish flushes whatever is left once the handler chain returns.
func (w *gzipWriter) finish() error {
	if w.gw != nil {
		if err := w.gw.Close(); err != nil {
			return errors.ErrGzipCompressionFailed
		}
		return nil
	}
	if w.pending.Len() > 0 {
		_, err := w.ResponseWriter.Write(w.pending.Bytes())
		w.pending.Reset()
		return err
	}
	return nil
}

func (w *gzipWriter) Flush() {
	if w.gw != nil {
		_ = w.gw.Flush()
	} else {
		w.plain = true
		if w.pending.Len() > 0 {
			_, _ = w.ResponseWriter.Write(w.pending.Bytes())
			w.pending.Reset()
		}
	}
	w.ResponseWriter.Flush()
}

func (w *gzipWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}

// GzipResponseCompress compresses large responses for clients that accept gzip.
func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead ||
			!strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		vary := ctx.Writer.Header().Get("Vary")
		if vary == "" {
			ctx.Writer.Header().Set("Vary", "Accept-Encoding")
		} else if !strings.Contains(vary, "Accept-Encoding") {
			ctx.Writer.Header().Set("Vary", vary+", Accept-Encoding")
		}

		gw := &gzipWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = gw
		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(err)
		}
	}
}
