package app

import "github.com/gin-gonic/gin"

// Module is a self-registering API module. Page routes come from the route
// registry instead.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
}
