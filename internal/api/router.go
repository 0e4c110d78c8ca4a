package api

import (
	"time"

	"cert-checker/internal/conf"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups what the router serves. Tool and Watch may be nil, in
// which case their routes are not registered.
type Handlers struct {
	Check *CheckHandler
	Tool  *ToolHandler
	Watch *WatchHandler
}

func NewRouter(auth conf.AuthConfig, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", h.Check.Home)
	r.GET("/health", h.Check.Health)

	authed := AuthMiddleware(auth)
	r.POST("/check", authed, h.Check.Check)

	v1 := r.Group("/api/v1")
	v1.Use(authed)
	{
		v1.POST("/check", h.Check.Check)
		if h.Tool != nil {
			v1.GET("/inspect", h.Tool.InspectDomain)
			v1.POST("/tools/decode-cert", h.Tool.DecodeCertificate)
		}
		if h.Watch != nil {
			v1.POST("/watch/scan", h.Watch.TriggerScan)
			v1.GET("/watch/last", h.Watch.LastScan)
			v1.POST("/watch/test-notify", h.Watch.TestNotification)
		}
	}
	return r
}
