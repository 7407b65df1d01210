package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fimin-dev/food-delivery-api/internal/service"
	appErrors "github.com/fimin-dev/food-delivery-api/pkg/errors"
	"github.com/fimin-dev/food-delivery-api/pkg/response"
)

// ContextUserKey is the gin context key storing the access token claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a fresh, fully valid access token. The
// refresh endpoint does not sit behind this middleware; it performs its own
// structural-only validation.
func JWT(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ParseFresh(parts[1])
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
