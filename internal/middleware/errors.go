// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/papertrade/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

// AbortWithError writes err as an ErrorResponse with the status its code
// maps to and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	code := apperr.GetCode(err)
	if code == apperr.CodeUnknown {
		code = apperr.CodeInternal
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), ErrorResponse{
		Error: apperr.Message(err),
		Code:  code,
	})
}
