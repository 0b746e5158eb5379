package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/handler/health"
	promhandler "github.com/jwalitptl/scheduling-api/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// RateLimit is nil when rate limiting is disabled.
	RateLimit *middleware.RateLimiterConfig
}

type Router struct {
	engine  *gin.Engine
	config  RouterConfig
	log     *logger.Logger
	auth    *middleware.AuthMiddleware
	metrics *promhandler.Handler
	health  *health.Handler
	api     []Handler
}

func NewRouter(
	config RouterConfig,
	log *logger.Logger,
	auth *middleware.AuthMiddleware,
	metrics *promhandler.Handler,
	health *health.Handler,
	api ...Handler,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := httputil.RegisterValidations(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	r := &Router{
		engine:  gin.New(),
		config:  config,
		log:     log,
		auth:    auth,
		metrics: metrics,
		health:  health,
		api:     api,
	}
	r.setup()
	return r, nil
}

func (r *Router) setup() {
	timeout := middleware.DefaultTimeoutConfig()
	if r.config.RequestTimeout > 0 {
		timeout.Duration = r.config.RequestTimeout
	}
	sizeLimit := middleware.DefaultSizeLimitConfig()
	if r.config.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = r.config.MaxBodyBytes
	}

	r.engine.Use(
		middleware.RequestID(),
		middleware.Logger(r.log),
		middleware.Recovery(r.log),
	)
	if r.metrics != nil {
		r.engine.Use(r.metrics.Middleware())
		r.engine.GET("/metrics", r.metrics.Handler())
	}
	r.engine.Use(
		middleware.Timeout(timeout),
		middleware.SizeLimit(sizeLimit),
	)

	if r.health != nil {
		r.health.RegisterRoutes(r.engine)
	}

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	// Limit after authentication so clients are keyed by user.
	if r.config.RateLimit != nil {
		api.Use(middleware.NewRateLimiter(*r.config.RateLimit).RateLimit())
	}
	for _, h := range r.api {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
