package response

import "github.com/gin-gonic/gin"

// Success sends a JSON body with success=true merged with the given
// payload keys.
func Success(c *gin.Context, statusCode int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

// Fail sends an error response with a single non-field error message.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"code":    code,
		"errors":  gin.H{"non_field_errors": GetMessage(code)},
	})
}

// FailWithFields sends an error response carrying field-level error
// details (field name → message).
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"code":    code,
		"errors":  fields,
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.Abort()
	Fail(c, statusCode, code)
}
