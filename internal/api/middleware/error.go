package middleware

import (
	"net/http"

	"voltedge/internal/api/models"

	"github.com/gin-gonic/gin"
)

// ErrorHandler recovers handler panics into the gateway's standard error
// envelope so stream consumers never see a half-written body.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		msg := "an unexpected error occurred"
		switch v := recovered.(type) {
		case string:
			msg = v
		case error:
			msg = v.Error()
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: msg},
		})
		c.Abort()
	})
}
