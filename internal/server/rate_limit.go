package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"go.uber.org/zap"
)

// WriteRateLimit applies the per-user write limiter to mutating requests.
// A limiter failure lets the request through.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() || !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID, ok := auditcontext.ActorUserIDFromContext(ctx)
		if !ok {
			c.Next()
			return
		}

		res, err := s.limiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed {
			c.Next()
			return
		}

		logger.FromContext(ctx).Warn("write rate limit exceeded",
			zap.String("route", c.FullPath()),
		)
		s.billingMetrics.IncRateLimited()
		c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(res.RetryAfter.Seconds())))))
		AbortWithError(c, ErrRateLimited)
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
