// Package response renders the dashboard wire contract. Successful
// endpoints write their document directly with c.JSON; every failure
// shares the single {"error": ...} envelope so the frontend can
// surface any problem the same way regardless of which call raised it.
package response

import "github.com/gin-gonic/gin"

// ErrorBody is the failure envelope for all JSON endpoints.
type ErrorBody struct {
	Error string `json:"error"`
}

// Error writes the failure envelope and aborts the handler chain, so
// middleware can use it to short-circuit a request.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: message})
}
