package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/billweb/internal/pkg"
)

// errorTemplates maps HTTP status codes to error page templates.
var errorTemplates = map[int]string{
	http.StatusBadRequest:          "errors/400.html",
	http.StatusNotFound:            "errors/404.html",
	http.StatusInternalServerError: "errors/500.html",
}

// renderError answers with an error page for browsers and the JSON envelope
// for everyone else. Unmapped codes use errors/500.html; if rendering panics
// (no renderer, broken template) the body degrades to plain text.
func renderError(c *gin.Context, code int, message string) {
	accept := strings.ToLower(c.GetHeader("Accept"))
	// acceptsHTML also matches */*, so an explicit JSON preference wins first.
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		c.JSON(code, pkg.Response{Code: code, Message: message})
		return
	}
	if acceptsHTML(c) {
		renderHTMLErrorPage(c, code, message)
		return
	}
	c.JSON(code, pkg.Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func renderHTMLErrorPage(c *gin.Context, code int, message string) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(code, "text/plain; charset=utf-8",
				[]byte(fmt.Sprintf("%d %s", code, statusText(code))))
		}
	}()

	tmpl, ok := errorTemplates[code]
	if !ok {
		tmpl = errorTemplates[http.StatusInternalServerError]
	}
	c.HTML(code, tmpl, gin.H{
		"Title":   statusText(code),
		"Status":  code,
		"Message": message,
		"Path":    c.Request.URL.Path,
	})
}

// acceptsHTML matches text/html, */* and an empty Accept header.
func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html") ||
		strings.Contains(accept, "*/*") ||
		strings.TrimSpace(accept) == ""
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}
