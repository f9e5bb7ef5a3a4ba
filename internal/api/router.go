package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// RouterOptions configures NewRouter. A nil RateLimit disables limiting.
type RouterOptions struct {
	CORSOrigins    []string
	TrustedProxies []string
	RateLimit      gin.HandlerFunc
	Tracing        bool
	Log            logrus.FieldLogger
}

// NewRouter builds the gin engine with middleware and every public route.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Tracing {
		router.Use(otelgin.Middleware(telemetry.ServiceName))
	}
	router.Use(telemetry.MetricsMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))
	if len(opts.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil && opts.Log != nil {
			opts.Log.WithError(err).Warn("failed to set trusted proxies")
		}
	}

	router.GET("/health", h.Health)
	router.GET("/healthz", h.Health)
	router.GET("/readyz", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiRoutes := router.Group("/api")
	if opts.RateLimit != nil {
		apiRoutes.Use(opts.RateLimit)
	}
	{
		apiRoutes.POST("/checkParcel", h.CheckParcel)
		apiRoutes.POST("/createClaim", h.CreateClaim)
		apiRoutes.POST("/claims/preview", h.PreviewClaim)
		apiRoutes.POST("/getBankName", h.GetBankName)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
		config.AllowCredentials = false
		return config
	}
	config.AllowOrigins = origins
	return config
}
