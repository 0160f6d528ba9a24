package rest

import (
	"github.com/Dhoini/subscription-reconciler/internal/api/rest/handlers"
	"github.com/Dhoini/subscription-reconciler/internal/api/rest/middleware"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Registry      *prometheus.Registry
	Auth          *middleware.JWTMiddleware
	Health        *handlers.HealthHandler
	Webhooks      *handlers.WebhookHandler
	Subscriptions *handlers.SubscriptionHandler
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(log *logger.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	r.GET("/health", deps.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	// Вебхуки на корневом уровне роутера, подпись проверяется в обработчике
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", deps.Webhooks.HandleStripeWebhook)
		webhooks.POST("/conekta", deps.Webhooks.HandleConektaWebhook)
	}

	v1 := r.Group("/api/v1")
	read := deps.Auth.RequireAuth(middleware.ScopeBillingRead)
	write := deps.Auth.RequireAuth(middleware.ScopeBillingWrite)
	{
		teams := v1.Group("/teams/:id")
		{
			teams.GET("/subscription", read, deps.Subscriptions.GetSubscription)
			teams.GET("/events", read, deps.Subscriptions.ListEvents)
			teams.POST("/subscription/cancel", write, deps.Subscriptions.ScheduleCancellation)
			teams.POST("/checkout/out-of-band", write, deps.Subscriptions.PayOutOfBand)
		}

		events := v1.Group("/webhook-events")
		{
			events.GET("", read, deps.Webhooks.ListWebhookEvents)
			events.GET("/:eventId", read, deps.Webhooks.GetWebhookEvent)
			events.POST("/:eventId/replay", write, deps.Webhooks.ReplayWebhookEvent)
		}
	}
	return r
}
