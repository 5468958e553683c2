// Package handlers implements the gin handlers of the report API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// ErrorResponse is the standard error response body. Detail mirrors the
// message so clients written against {"detail": ...} keep working.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps err to its HTTP status. Server-side failures are masked
// with the code's default message; the raw error is attached to the gin
// context for the logging middleware.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown || code == errors.CodeOK {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	msg := errors.DefaultMessageForCode(code)
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code.String(), Message: msg, Detail: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    errors.ErrCodeBadRequest.String(),
		Message: msg,
		Detail:  msg,
	})
}

// parseID reads a positive int64 path parameter and answers 400 otherwise.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter bounded by [1, max].
func queryInt(c *gin.Context, name string, def, max int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
