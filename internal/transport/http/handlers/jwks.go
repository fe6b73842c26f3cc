package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/transport/http/middleware"
)

const jwksCacheControl = "public, max-age=3600"

// KeySet renders the public signing keys.
type KeySet interface {
	JWKS() ([]byte, error)
}

// JWKSHandler provides the JSON Web Key Set used for offline JWT validation.
type JWKSHandler struct {
	keys KeySet
}

// NewJWKSHandler constructs a JWKS handler backed by the supplied key set.
func NewJWKSHandler(keys KeySet) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Keys serves /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		middleware.AbortWithFailure(c, domain.ErrIO, "jwks not available")
		return
	}

	payload, err := h.keys.JWKS()
	if err != nil {
		middleware.AbortWithFailure(c, domain.ErrIO, "failed to render jwks")
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
