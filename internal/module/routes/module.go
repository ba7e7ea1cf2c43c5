package routes

import (
	"github.com/gin-gonic/gin"
	shardedcache "github.com/simp-lee/cache"
	"github.com/simp-lee/ginx"
)

// perRequestHeaders are set by global middleware for each request and must
// not be replayed from a cached response.
var perRequestHeaders = []string{
	"X-Request-ID",
	"Vary",
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Credentials",
	"Access-Control-Expose-Headers",
}

// RoutesModule implements the app.Module interface for route introspection.
type RoutesModule struct {
	handler *RoutesHandler
	cache   shardedcache.CacheInterface
}

// NewModule creates a RoutesModule. A non-nil cache stores successful
// responses; requests carrying a cookie or Authorization header bypass it.
// Panics if h is nil.
func NewModule(h *RoutesHandler, cache shardedcache.CacheInterface) *RoutesModule {
	if h == nil {
		panic("routes.NewModule: handler must not be nil")
	}
	return &RoutesModule{handler: h, cache: cache}
}

// RegisterRoutes registers the route introspection API.
func (m *RoutesModule) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group("/routes")
	if m.cache != nil {
		g.Use(ginx.NewChain().
			Use(ginx.CacheWithOptions(m.cache)).
			Use(dropBeforeStore(perRequestHeaders...)).
			Build())
	}
	g.GET("", m.handler.List)
	g.GET("/:name", m.handler.Get)
}

// dropBeforeStore removes headers from the header map once the handler has
// written its response, so the cache layer wrapping it stores them without.
// The response already sent is unaffected.
func dropBeforeStore(headers ...string) ginx.Middleware {
	return func(next gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			next(c)
			if !c.Writer.Written() {
				return
			}
			h := c.Writer.Header()
			for _, name := range headers {
				h.Del(name)
			}
		}
	}
}
