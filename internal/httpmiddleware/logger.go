package httpmiddleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Logger logs outbound requests and their outcome. Credentials in headers
// and in bot-token path segments are redacted.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			target := RedactURL(req.URL)

			logger.LogAttrs(req.Context(), slog.LevelDebug, "📤 HTTP Request",
				slog.String("method", req.Method),
				slog.String("url", target),
				slog.Any("headers", headerGroup(req.Header)))

			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("HTTP request failed",
					slog.String("method", req.Method),
					slog.String("url", target),
					slog.Duration("duration", duration),
					slog.Any("error", err))

				return resp, err
			}

			level := slog.LevelDebug
			if resp.StatusCode >= 400 {
				level = slog.LevelWarn
			}

			if resp.StatusCode >= 500 {
				level = slog.LevelError
			}

			logger.LogAttrs(req.Context(), level, "📥 HTTP Response",
				slog.String("method", req.Method),
				slog.String("url", target),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", duration))

			return resp, nil
		})
	}
}

// RedactURL renders u without its query string and with any "bot<token>"
// path segment masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "bot") && strings.Contains(seg, ":") {
			segments[i] = "bot[REDACTED]"
		}
	}

	redacted := *u
	redacted.Path = strings.Join(segments, "/")
	redacted.RawPath = ""
	redacted.RawQuery = ""
	redacted.User = nil

	return redacted.String()
}

func headerGroup(h http.Header) slog.Value {
	attrs := make([]slog.Attr, 0, len(h))
	for k, v := range h {
		if isSensitiveHeader(k) {
			attrs = append(attrs, slog.String(k, "[REDACTED]"))
		} else {
			attrs = append(attrs, slog.String(k, strings.Join(v, ", ")))
		}
	}

	return slog.GroupValue(attrs...)
}

// isSensitiveHeader checks if header contains sensitive information
func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "x-agent-key", "x-auth-token":
		return true
	}

	return false
}
