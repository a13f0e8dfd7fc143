package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
)

const HeaderUserID = "X-User-Id"

// ActorRequired resolves the acting business account from X-User-Id and puts
// it on the request context for ownership scoping and audit attribution.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		ctx = auditcontext.WithActorUserID(ctx, userID)
		ctx = obscontext.WithActorID(ctx, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
