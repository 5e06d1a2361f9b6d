package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CreditFox/app/controllers"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Provider webhooks bypass the rate limiter: bursts of redeliveries are
	// normal and a throttled delivery would just be retried anyway.
	internal := app.Group("/api/internal")
	internal.Post("/webhooks/payment", controllers.HandleProviderWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get("/credits/balance", controllers.HandleGetBalance)
	v1.Post("/credits/checkout", controllers.HandleCreateCheckout)
	v1.Put("/credits/topup-settings", controllers.HandleUpdateTopupSettings)
	v1.Post("/credits/consume", controllers.HandleConsumeCredits)
	v1.Get("/admin/webhook-metrics", controllers.HandleWebhookMetrics)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
