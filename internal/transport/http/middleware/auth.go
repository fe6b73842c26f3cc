package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/transport/bearer"
)

// Authenticate resolves an optional bearer token into a principal reference. Requests
// without an Authorization header continue anonymously; the pipeline decides whether
// the command needs a principal. A present but unusable token is rejected.
func Authenticate(parser bearer.TokenParser, issuer string, clk clock.Clock) gin.HandlerFunc {
	if clk == nil {
		clk = clock.Real()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		token, err := bearer.FromHeader(authHeader)
		if err != nil {
			AbortWithFailure(c, domain.ErrAuthentication, "invalid authorization format: expected 'Bearer <token>'")
			return
		}

		ref, err := bearer.Resolve(parser, token, issuer, clk.Now())
		if err != nil {
			AbortWithFailure(c, domain.ErrAuthentication, "invalid access token")
			return
		}

		c.Set(principalKey, ref)
		c.Next()
	}
}
