// Package middleware 提供幂等性中间件。
// 客户端通过 Idempotency-Key 头标记一次业务提交，
// 重复提交在窗口期内被拒绝，防止结账等写操作重复执行。
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/cache"
	"github.com/pharmaops/pharmacy_server/internal/resp"
)

const (
	// HeaderIdempotencyKey 幂等键请求头
	HeaderIdempotencyKey = "Idempotency-Key"

	idempotencyKeyPrefix = "idem"
)

// Idempotency 幂等性中间件。
// 仅拦截写方法；未携带幂等键的请求直接放行，
// 幂等键由 SetNX 抢占，抢占失败视为重复提交。
func Idempotency(store cache.Cache, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			reqID := RequestIDFromContext(r.Context())

			scope := key
			if user := UserFromContext(r.Context()); user != nil {
				scope = fmt.Sprintf("%d:%s", user.ID, key)
			}
			cacheKey := fmt.Sprintf("%s:%s:%s", idempotencyKeyPrefix, r.URL.Path, scope)

			acquired, err := store.SetNX(r.Context(), cacheKey, reqID, ttl)
			if err != nil {
				// 存储不可用时放行请求，幂等只作为重复提交保护层
				logger.Warn("idempotency store unavailable",
					zap.String("request_id", reqID),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				logger.Warn("duplicate request rejected",
					zap.String("request_id", reqID),
					zap.String("idempotency_key", key),
					zap.String("path", r.URL.Path),
				)
				resp.Error(w, http.StatusConflict, resp.CodeConflict, "duplicate request", reqID, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
