package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homework-review-api/internal/middleware"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/response"
)

// requireClaims returns the JWT claims or writes a 401 and returns nil.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, size
}
