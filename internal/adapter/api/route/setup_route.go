package route

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/controller"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/middleware"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/idempotency"
	"github.com/hugohenrick/erp-veterinaria/pkg/auth"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/tenant"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// HealthCheck informa se uma dependência está acessível
type HealthCheck func(ctx context.Context) error

// RouterConfig reúne os componentes montados pelo SetupRouter
type RouterConfig struct {
	Logger           logger.Logger
	FiscalController *controller.FiscalController
	NFeController    *controller.NFeController
	Idempotency      idempotency.Store
	IdempotencyTTL   time.Duration
	JWTService       *auth.JWTService // nil desliga a autenticação e usa só o cabeçalho tenant-id
	CORSAllowOrigins []string
	SwaggerEnabled   bool
	Health           map[string]HealthCheck
	Version          string
}

// SetupRouter cria o engine do Gin com middlewares globais, health check e rotas da API v1
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(cfg.Logger))
	router.Use(cors.New(corsConfig(cfg.CORSAllowOrigins)))

	router.GET("/health", healthHandler(cfg.Health, cfg.Version))
	if cfg.SwaggerEnabled {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group("/api/v1")
	if cfg.JWTService != nil {
		api.Use(auth.JWTAuthMiddleware(cfg.JWTService))
	}
	api.Use(tenant.TenantMiddleware())

	idempotent := middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, cfg.Logger)
	SetupFiscalRoutes(api, cfg.FiscalController, cfg.NFeController, idempotent)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", tenant.HeaderName, middleware.IdempotencyHeader)
	c.ExposeHeaders = []string{middleware.ReplayedHeader}
	c.MaxAge = 12 * time.Hour

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func healthHandler(checks map[string]HealthCheck, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"version":      version,
			"dependencies": results,
		})
	}
}
