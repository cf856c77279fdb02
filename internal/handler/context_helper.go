package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-allocator/internal/middleware"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
	"github.com/noah-isme/timetable-allocator/pkg/response"
)

func actorID(c *gin.Context) string {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return ""
	}
	return claims.UserID
}

// bindJSON decodes the body and writes a 400 on failure. An empty body is accepted when optional is set.
func bindJSON(c *gin.Context, dest interface{}, message string, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
