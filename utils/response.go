package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the error envelope every handler returns.
func ErrorResponse(message string) gin.H {
	return gin.H{
		"success": false,
		"error":   message,
	}
}

// SuccessResponse is the success envelope. Data may be nil.
func SuccessResponse(message string, data gin.H) gin.H {
	resp := gin.H{
		"success": true,
		"message": message,
	}
	for k, v := range data {
		resp[k] = v
	}
	return resp
}
