package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
)

// Recovery returns a gin middleware that recovers from panics, logs the
// panic with its stack and answers 500.
//
// Browsers (Accept contains text/html) get the errors/500.html page, or a
// plain-text body when no renderer is configured. Everyone else gets:
//
//	{"code": 500, "message": "internal server error", "data": null}
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}

			logger.ErrorContext(c.Request.Context(), "panic recovered",
				slog.Any("panic", err),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("request_id", GetRequestID(c)),
				slog.String("stack", string(debug.Stack())),
			)

			c.Abort()
			if wantsHTML(c) {
				renderHTMLError(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "internal server error",
				"data":    nil,
			})
		}()
		c.Next()
	}
}

func renderHTMLError(c *gin.Context) {
	defer func() {
		// No HTML renderer, or the error page itself failed.
		if r := recover(); r != nil {
			c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
		}
	}()
	c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{
		"Title":  http.StatusText(http.StatusInternalServerError),
		"Status": http.StatusInternalServerError,
		"Path":   c.Request.URL.Path,
	})
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")
}
