package routes

import (
	"net/http"

	"plan-delivery-service/controllers"
	"plan-delivery-service/middleware"

	"github.com/gin-gonic/gin"
)

func Register(
	r *gin.Engine,
	wc *controllers.WebhookController,
	cc *controllers.CheckoutController,
	rc *controllers.ResolutionController,
	adminKey string,
) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Payment provider webhook (authenticated by signature, not session)
	r.POST("/webhooks/payment", wc.HandlePaymentWebhook)

	r.POST("/checkout/session", cc.CreateSession)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(adminKey))
	admin.GET("/manual-resolution", rc.List)
	admin.POST("/manual-resolution/:id/resolve", rc.Resolve)
	admin.POST("/manual-resolution/:id/assign", rc.Assign)
}
