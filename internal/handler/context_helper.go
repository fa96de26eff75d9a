package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/middleware"
	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

func identityFromContext(c *gin.Context) *models.Identity {
	return middleware.IdentityFromContext(c)
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
