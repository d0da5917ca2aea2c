// Package middleware provides HTTP middleware shared by the API router.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorRecoveryMiddleware recovers panics raised while handling a request,
// logs them with a stack trace, and responds with a standardized error body
func ErrorRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := string(debug.Stack())

				// Convert panic value to error if needed
				var panicErr error
				if e, ok := r.(error); ok {
					panicErr = e
				} else {
					panicErr = fmt.Errorf("panic: %v", r)
				}

				if logger != nil {
					logger.Error(c.Request.Context(), "Panic recovered while handling request", panicErr, map[string]interface{}{
						"http.method": c.Request.Method,
						"http.path":   c.Request.URL.Path,
						"stack":       stackTrace,
					})
				}

				appErr := contextutils.NewAppErrorWithCause(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
					panicErr,
				)

				// Expose the stack trace only in debug mode
				if gin.Mode() == gin.DebugMode {
					appErr.Details = fmt.Sprintf("%s\nStack trace: %s", appErr.Details, stackTrace)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToJSON())
			}
		}()

		c.Next()
	}
}
