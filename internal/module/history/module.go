package history

import "github.com/gin-gonic/gin"

// HistoryModule implements the app.Module interface for navigation history.
type HistoryModule struct {
	handler *HistoryHandler
	session gin.HandlerFunc
}

// NewModule creates a HistoryModule. session identifies the caller for the
// per-session endpoint and is normally middleware.Session.
// Panics if h or session is nil.
func NewModule(h *HistoryHandler, session gin.HandlerFunc) *HistoryModule {
	if h == nil {
		panic("history.NewModule: handler must not be nil")
	}
	if session == nil {
		panic("history.NewModule: session middleware must not be nil")
	}
	return &HistoryModule{handler: h, session: session}
}

// RegisterRoutes registers the history API routes.
func (m *HistoryModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/history", m.handler.List)
	api.GET("/history/session", m.session, m.handler.Session)
}
