package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/HousDev/viewtrack/config"
	"github.com/HousDev/viewtrack/controllers"
	"github.com/HousDev/viewtrack/middleware"
	"github.com/HousDev/viewtrack/utils"
	"github.com/HousDev/viewtrack/views"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(engine *views.Engine) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}
	r.Use(middleware.RequestID())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	viewsController := controllers.NewViewsController(engine, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	group := r.Group("/views")
	group.GET("/total", viewsController.GetTotalViews)
	group.GET("/top", viewsController.GetTopViews)
	group.GET("/bottom", viewsController.GetBottomViews)
	group.GET("/property/:id", viewsController.GetPropertyViews)

	record := group.Group("")
	record.Use(middleware.RateLimitMiddleware())
	record.POST("/record", viewsController.RecordView)
	record.POST("/property/:id/record", viewsController.RecordPropertyView)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, "route not found")
	})

	return r
}
