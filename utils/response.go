package utils

import "github.com/gin-gonic/gin"

// Success writes a 200 response with success=true merged into the payload,
// keeping counter fields at the top level of the JSON object.
func Success(ctx *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	ctx.JSON(200, body)
}

// Error writes a uniform failure envelope. message must stay generic: driver
// error strings and stack traces belong in the server log only.
func Error(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"success": false, "message": message})
}
