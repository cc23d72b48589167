package middleware

import (
	"github.com/gin-gonic/gin"

	"bloom-api/internal/config"
	"bloom-api/internal/shared"
	"bloom-api/internal/shared/response"
)

// Environment chọn Parse server và bucket theo ?env=, mặc định từ config.
// Only environments with a configured Parse server are accepted.
func Environment(defaultEnv config.Environment, configured []config.Environment) gin.HandlerFunc {
	allowed := make(map[config.Environment]bool, len(configured))
	for _, env := range configured {
		allowed[env] = true
	}

	return func(c *gin.Context) {
		env := defaultEnv
		if raw := c.Query("env"); raw != "" {
			parsed, err := config.ParseEnvironment(raw)
			if err != nil {
				response.BadRequest(c, "env must be one of prod, dev, unittest")
				c.Abort()
				return
			}
			if !allowed[parsed] {
				response.BadRequest(c, "env "+raw+" is not configured on this server")
				c.Abort()
				return
			}
			env = parsed
		}

		c.Set(shared.ContextKeyEnvironment, string(env))
		c.Next()
	}
}

// EnvironmentFrom returns the environment selected for the request.
func EnvironmentFrom(c *gin.Context) config.Environment {
	return config.Environment(c.GetString(shared.ContextKeyEnvironment))
}
