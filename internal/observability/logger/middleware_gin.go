package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/catalogsync/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// AccessLogConfig controls the per-request access log.
type AccessLogConfig struct {
	Debug bool
	// Classify maps a handler error to (error_type, error_code) log fields.
	Classify func(err error) (string, string)
	// Quiet routes are logged at debug level.
	Quiet []string
}

// AccessLog assigns a request id and writes one "http_request" entry per
// request once handlers have run.
func AccessLog(cfg AccessLogConfig) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(cfg.Quiet))
	for _, route := range cfg.Quiet {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		began := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		entry := accessEntry{
			route:  route,
			status: c.Writer.Status(),
			fields: []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("route", route),
				zap.Int("status", c.Writer.Status()),
				zap.Int64("duration_ms", time.Since(began).Milliseconds()),
				zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
				zap.Int("bytes_out", max(c.Writer.Size(), 0)),
			},
		}
		entry.optional("supplier_id", c.Param("supplier_id"))
		entry.optional("search_mode", c.GetString("search_mode"))

		if last := c.Errors.Last(); last != nil {
			if cfg.Classify != nil {
				entry.errorType, entry.errorCode = cfg.Classify(last.Err)
			}
			entry.fields = append(entry.fields,
				zap.String("error_type", entry.errorType),
				zap.String("error_code", entry.errorCode),
			)
			if cfg.Debug {
				entry.fields = append(entry.fields, zap.Stack("stack"))
			}
		}

		_, isQuiet := quiet[route]
		if ce := FromContext(c.Request.Context()).Check(entry.level(isQuiet), "http_request"); ce != nil {
			ce.Write(entry.fields...)
		}
	}
}

type accessEntry struct {
	route     string
	status    int
	errorType string
	errorCode string
	fields    []zap.Field
}

func (e *accessEntry) optional(key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		e.fields = append(e.fields, zap.String(key, value))
	}
}

func (e *accessEntry) level(quiet bool) zapcore.Level {
	switch {
	case quiet:
		return zapcore.DebugLevel
	case e.status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case e.route == "/search" && e.errorType == "validation_error":
		// Malformed search input is client noise.
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(requestIDHeader, id)
	return id
}
