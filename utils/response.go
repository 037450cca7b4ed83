package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every endpoint answers with.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Abort writes an error response and stops the handler chain.
func Abort(ctx *gin.Context, status int, code int, message string) {
	Error(ctx, status, code, message)
	ctx.Abort()
}
