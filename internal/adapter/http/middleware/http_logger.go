package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hsmazur/Taberna3/internal/logging"
)

const (
	reqBodyLimit  = 8 * 1024 // 8KB
	respBodyLimit = 8 * 1024 // 8KB
	maxBody       = 1 << 20
)

type bodyLogWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	// copy into buffer with cap
	if w.buf != nil && w.buf.Len() < respBodyLimit {
		remain := respBodyLimit - w.buf.Len()
		if len(b) > remain {
			w.buf.Write(b[:remain])
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

var redactedKeys = map[string]bool{
	"password":      true,
	"new_password":  true,
	"senha":         true,
	"authorization": true,
	"token":         true,
	"access_token":  true,
	"secret":        true,
	"card_number":   true,
	"cvv":           true,
	"code":          true,
}

func redactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw // not JSON
	}
	var scrub func(any) any
	scrub = func(x any) any {
		switch v := x.(type) {
		case map[string]any:
			for k, val := range v {
				if redactedKeys[strings.ToLower(k)] {
					v[k] = "***redacted***"
					continue
				}
				v[k] = scrub(val)
			}
			return v
		case []any:
			for i := range v {
				v[i] = scrub(v[i])
			}
			return v
		default:
			return v
		}
	}
	out := scrub(m)
	b, err := json.Marshal(out)
	if err != nil {
		return raw
	}
	return b
}

func capped(b []byte, n int) (body []byte, truncated bool) {
	if len(b) > n {
		return append([]byte(nil), b[:n]...), true
	}
	return append([]byte(nil), b...), false
}

// Logging returns a Gin middleware that logs request/response and injects a slog.Logger into the context.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// request id
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", reqID)
		}
		c.Header("X-Request-Id", reqID)

		l := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(), // may be empty if no route matched
			"remote", c.ClientIP(),
		)
		logging.With(c, l)

		// capture request body (JSON only)
		var reqBodyLogged string
		ct := c.GetHeader("Content-Type")
		if strings.Contains(ct, "application/json") && c.Request.Body != nil {
			raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
			_ = c.Request.Body.Close()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
				return
			}
			body, truncated := capped(raw, reqBodyLimit)
			body = redactJSON(body)
			if truncated {
				body = append(body, []byte("...truncated...")...)
			}
			reqBodyLogged = string(body)
			// restore the original body for next handlers
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		}

		// capture response
		blw := &bodyLogWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = blw

		// process
		c.Next()

		status := c.Writer.Status()
		durMs := time.Since(start).Milliseconds()

		// response body only if JSON
		var respBodyLogged string
		if strings.Contains(c.Writer.Header().Get("Content-Type"), "application/json") {
			respBodyLogged = string(redactJSON(blw.buf.Bytes()))
			if blw.buf.Len() >= respBodyLimit {
				respBodyLogged += "...truncated..."
			}
		}

		attrs := []any{
			"status", status,
			"dur_ms", durMs,
		}
		if reqBodyLogged != "" {
			attrs = append(attrs, "req_body", reqBodyLogged)
		}
		if respBodyLogged != "" {
			attrs = append(attrs, "resp_body", respBodyLogged)
		}
		// include route params for convenience
		if len(c.Params) > 0 {
			attrs = append(attrs, "params", c.Params)
		}

		// include error (if any)
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		// also log response size
		attrs = append(attrs, "resp_bytes", strconv.FormatInt(int64(c.Writer.Size()), 10))

		if status >= http.StatusBadRequest {
			l.Error("http_request", attrs...)
			return
		}
		l.Info("http_request", attrs...)
	}
}
