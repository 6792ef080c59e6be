package httperr

import (
	"github.com/gin-gonic/gin"
)

// Response is the structured error body. Status stays out of the JSON;
// it rides along so the error middleware can replay the response.
type Response struct {
	Status int `json:"-"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
	Detail any `json:"detail,omitempty"`
}

// AbortWithError records the original error on the context for the
// logging middleware and writes the public message to the client.
func AbortWithError(c *gin.Context, status int, err error, msg string, detail any) {
	if err == nil {
		panic("AbortWithError: err cannot be nil")
	}

	resp := Response{Status: status}
	resp.Error.Message = msg
	resp.Detail = detail

	_ = c.Error(gin.Error{
		Err:  err,
		Type: gin.ErrorTypePublic,
		Meta: resp,
	})
	c.AbortWithStatusJSON(status, resp)
}

// Internal is the catch-all for errors the client cannot act on. The
// cause is kept for the request log, never echoed back.
func Internal(c *gin.Context, err error) {
	AbortWithError(c, 500, err, "Internal server error", nil)
}
