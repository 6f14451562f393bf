package router

import (
	"intelliscale/app/handler"
	"intelliscale/app/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router Router
type Router struct {
	policyHandler     *handler.PolicyHandler
	autoscalerHandler *handler.AutoScalerHandler
	loadTestHandler   *handler.LoadTestHandler
	containerHandler  *handler.ContainerHandler
	healthHandler     *handler.HealthHandler
	exposeMetrics     bool
}

// Handlers groups the handlers served by the router. Nil handlers leave their routes out.
type Handlers struct {
	Policy     *handler.PolicyHandler
	AutoScaler *handler.AutoScalerHandler
	LoadTest   *handler.LoadTestHandler
	Container  *handler.ContainerHandler
	Health     *handler.HealthHandler
}

// NewRouter creates a new Router
func NewRouter(h Handlers, exposeMetrics bool) *Router {
	health := h.Health
	if health == nil {
		health = handler.NewHealthHandler()
	}
	return &Router{
		policyHandler:     h.Policy,
		autoscalerHandler: h.AutoScaler,
		loadTestHandler:   h.LoadTest,
		containerHandler:  h.Container,
		healthHandler:     health,
		exposeMetrics:     exposeMetrics,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	api := engine.Group("/api/v1")
	api.Use(middleware.Identity())
	{
		autoscaling := api.Group("/autoscaling")
		{
			if r.policyHandler != nil {
				policies := autoscaling.Group("/policies")
				{
					policies.POST("", r.policyHandler.Create)
					policies.GET("", r.policyHandler.List)
					policies.GET("/:id", r.policyHandler.Get)
					policies.PUT("/:id", r.policyHandler.Update)
					policies.DELETE("/:id", r.policyHandler.Delete)
					policies.POST("/:id/toggle", r.policyHandler.Toggle)
					policies.GET("/:id/status", r.policyHandler.Status) // replicas, cooldown, next evaluation
				}
			}

			if r.autoscalerHandler != nil {
				autoscaling.POST("/evaluate-now", r.autoscalerHandler.EvaluateNow)
				autoscaling.GET("/events", r.autoscalerHandler.ListEvents) // newest first
				autoscaling.GET("/status", r.autoscalerHandler.GetStatus)

				// Control
				autoscaling.POST("/enable", r.autoscalerHandler.Enable)
				autoscaling.POST("/disable", r.autoscalerHandler.Disable)
				autoscaling.GET("/config", r.autoscalerHandler.GetGlobalConfig)
				autoscaling.PUT("/config", r.autoscalerHandler.UpdateGlobalConfig)
			}
		}

		if r.loadTestHandler != nil {
			loadtest := api.Group("/loadtest")
			{
				loadtest.POST("/start", r.loadTestHandler.Start)
				loadtest.GET("/history", r.loadTestHandler.History)
				loadtest.GET("/:id", r.loadTestHandler.Get)
				loadtest.GET("/:id/metrics", r.loadTestHandler.Metrics)
				loadtest.GET("/:id/metrics/stream", r.loadTestHandler.Stream) // SSE
				loadtest.GET("/:id/metrics/ws", r.loadTestHandler.StreamWS)   // WebSocket
				loadtest.DELETE("/:id", r.loadTestHandler.Cancel)
				loadtest.POST("/:id/cancel", r.loadTestHandler.Cancel)
			}
		}

		if r.containerHandler != nil {
			containers := api.Group("/containers")
			{
				containers.POST("", r.containerHandler.Register)
				containers.GET("", r.containerHandler.List)
				containers.GET("/:id", r.containerHandler.Get)
				containers.GET("/:id/replicas", r.containerHandler.Replicas)
				containers.PUT("/:id/simulated-metrics", r.containerHandler.PinMetrics)
				containers.DELETE("/:id/simulated-metrics", r.containerHandler.UnpinMetrics)
			}
		}
	}

	// Health check
	engine.GET("/healthz", r.healthHandler.Health)
	engine.GET("/health", r.healthHandler.Health)

	if r.exposeMetrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
