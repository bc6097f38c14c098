package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tradeboard/internal/config"
	entitlementdomain "github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(registry *prometheus.Registry) *gin.Engine {
	return NewEngine(registry)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	catalog         *tier.Catalog
	entitlementSvc  entitlementdomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Catalog         *tier.Catalog
	EntitlementSvc  entitlementdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		catalog:         p.Catalog,
		entitlementSvc:  p.EntitlementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	entitlements := v1.Group("/entitlements")
	entitlements.POST("/check", s.CheckEntitlement)
	entitlements.POST("/consume", s.ConsumeEntitlement)
	entitlements.GET("/features", s.ListFeatures)

	subscriptions := v1.Group("/subscriptions")
	subscriptions.PUT("", s.UpsertSubscription)
	subscriptions.GET("/:user_id", s.GetPlan)

	usage := v1.Group("/usage")
	usage.GET("/summary", s.SummarizeUsage)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
