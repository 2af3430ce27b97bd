package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/pkg/response"
)

// ConfigurationHandler exposes the feature flags the student front-end adapts to.
type ConfigurationHandler struct {
	public dto.PublicConfig
}

// NewConfigurationHandler constructs the handler from resolved settings.
func NewConfigurationHandler(public dto.PublicConfig) *ConfigurationHandler {
	if public.AllowedImageFormats == nil {
		public.AllowedImageFormats = []string{}
	}
	return &ConfigurationHandler{public: public}
}

// Public godoc
// @Summary Public feature flags
// @Tags Config
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /config [get]
func (h *ConfigurationHandler) Public(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.public, nil)
}
