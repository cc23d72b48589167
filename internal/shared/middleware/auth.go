package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/internal/shared"
	"bloom-api/internal/shared/response"
)

// UserResolver maps a Parse session token to its user.
type UserResolver interface {
	ResolveUser(ctx context.Context, env config.Environment, sessionToken string) (*shared.UserInfo, error)
}

// AuthMiddleware - xác thực bằng Parse session token trong header
// Authentication-Token. Phải chạy sau Environment.
func AuthMiddleware(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Lấy token từ header
		token := c.GetHeader(shared.HeaderAuthenticationToken)
		if token == "" {
			response.Unauthorized(c, "missing Authentication-Token header")
			c.Abort()
			return
		}

		// 2. Hỏi Parse server của environment đã chọn
		env := EnvironmentFrom(c)
		user, err := resolver.ResolveUser(c.Request.Context(), env, token)
		if err != nil {
			if errors.Is(err, parse.ErrInvalidSession) {
				response.Unauthorized(c, "invalid session token")
				c.Abort()
				return
			}
			log.Error().
				Err(err).
				Str("request_id", c.GetString(shared.ContextKeyRequestID)).
				Str("env", env.String()).
				Msg("Failed to resolve session")
			response.InternalServerError(c, "Unable to validate session")
			c.Abort()
			return
		}

		// 3. Set user vào context
		c.Set(shared.ContextKeyUser, *user)
		c.Next()
	}
}

// UserFrom returns the authenticated caller.
func UserFrom(c *gin.Context) (shared.UserInfo, bool) {
	v, ok := c.Get(shared.ContextKeyUser)
	if !ok {
		return shared.UserInfo{}, false
	}
	user, ok := v.(shared.UserInfo)
	return user, ok
}
