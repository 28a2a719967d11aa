package api

import (
	"net/http"
	"strconv"

	"exchange-service/internal/apperror"
	"exchange-service/internal/session"
	"exchange-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps err onto a JSON error response
func writeError(c *gin.Context, err error) {
	if appErr, ok := apperror.As(err); ok {
		c.JSON(appErr.HTTPStatus, gin.H{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}

	util.GetLogger().Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
		"code":  apperror.ErrCodeInternal,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{
		"error": message,
		"code":  apperror.ErrCodeBadRequest,
	}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// pathID parses the :id parameter, answering 400 when it is not a positive integer
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id", nil)
		return 0, false
	}
	return id, true
}

// currentSession returns the caller set by authMiddleware
func currentSession(c *gin.Context) session.Session {
	s, _ := session.FromContext(c.Request.Context())
	return s
}
