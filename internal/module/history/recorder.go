package history

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/middleware"
	"github.com/simp-lee/billweb/internal/route"
)

// Recorder returns a gin middleware that records a visit after a page
// handler bound by route.Registry.Install answers a GET with 2xx. It needs
// middleware.Session earlier in the chain. Store failures are logged and
// never change the response.
func Recorder(svc domain.VisitService, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		if status := c.Writer.Status(); status < 200 || status > 299 {
			return
		}
		entry, ok := route.Current(c)
		if !ok {
			return
		}
		sessionID := middleware.GetSessionID(c)
		if sessionID == "" {
			return
		}

		ctx := c.Request.Context()
		_, err := svc.Record(ctx, domain.VisitInput{
			SessionID: sessionID,
			RouteName: entry.Name,
			Path:      entry.Path,
			RequestID: middleware.GetRequestID(c),
		})
		if err != nil {
			logger.WarnContext(ctx, "record visit failed",
				slog.String("route", entry.Path),
				slog.Any("error", err),
			)
		}
	}
}
