package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const jwksCacheControl = "public, max-age=3600"

// KeySet renders the public verification keys as a JSON Web Key Set.
type KeySet interface {
	JWKS() ([]byte, error)
}

// JWKSHandler publishes the access token verification keys so other services can validate offline.
type JWKSHandler struct {
	keys KeySet
}

// NewJWKSHandler constructs a JWKS handler.
func NewJWKSHandler(keys KeySet) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Keys godoc
// @Summary Retrieve JSON Web Key Set
// @Description Exposes the public keys used to verify access token signatures.
// @Tags Public
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} Envelope
// @Router /.well-known/jwks.json [get]
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		respondError(c, http.StatusServiceUnavailable, ErrorBody{Code: "unavailable", Message: "jwks not available"})
		return
	}

	payload, err := h.keys.JWKS()
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, ErrorBody{Code: "internal_error", Message: "failed to render jwks"})
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
