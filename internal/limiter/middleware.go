// Package limiter 限流中间件实现
package limiter

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/resp"
)

// clientIP 提取客户端IP，优先使用代理头
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// keyFor 生成限流Key：已认证请求按用户，否则按IP
func keyFor(r *http.Request) string {
	if user := middleware.UserFromContext(r.Context()); user != nil {
		return fmt.Sprintf("user:%d", user.ID)
	}
	return fmt.Sprintf("ip:%s", clientIP(r))
}

// Middleware 创建限流中间件。
// 限流服务不可用时放行请求，限流只作为过载保护层。
func Middleware(l Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.RequestIDFromContext(r.Context())

			result, err := l.Allow(r.Context(), keyFor(r))
			if err != nil {
				logger.Warn("rate limiter unavailable",
					zap.String("request_id", reqID),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			if result.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(result.RetryAfter/time.Second), 10))
			}

			if !result.Allowed {
				logger.Warn("request rate limited",
					zap.String("request_id", reqID),
					zap.String("path", r.URL.Path),
				)
				resp.Error(w, http.StatusTooManyRequests, resp.CodeTooManyRequests, "too many requests", reqID, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
