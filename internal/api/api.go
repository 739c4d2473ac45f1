// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/salesboard/backend-go/internal/api/handlers"
	"github.com/andresuchdata/salesboard/backend-go/internal/api/middleware"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
)

type Services struct {
	SalesService  *service.SalesService
	TargetService *service.TargetService
	Proxy         *handlers.ProxyHandler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(log.Logger, "/health"))
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Proxy != nil {
		router.GET("/api/proxy/*endpoint", services.Proxy.Forward)
	}

	apiGroup := router.Group("/api/v1")
	apiGroup.Use(middleware.BearerToken())

	if services.SalesService != nil {
		salesHandler := handlers.NewSalesHandler(services.SalesService)
		salesGroup := apiGroup.Group("/sales")
		{
			salesGroup.GET("/regions", salesHandler.GetRegions)
			salesGroup.GET("/summary", salesHandler.GetSummary)
			salesGroup.GET("/daily", salesHandler.GetDaily)
		}
		apiGroup.GET("/kpi", salesHandler.GetKpi)
	}

	if services.TargetService != nil {
		targetHandler := handlers.NewTargetHandler(services.TargetService)
		targetGroup := apiGroup.Group("/targets")
		{
			targetGroup.GET("", targetHandler.ListTargets)
			targetGroup.GET("/:month", targetHandler.GetTarget)
			targetGroup.PUT("/:month", targetHandler.PutTarget)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
