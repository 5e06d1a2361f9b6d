package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	webhookmonitor "github.com/ManuelReschke/CreditFox/internal/pkg/monitor"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payprovider"
	"github.com/ManuelReschke/CreditFox/internal/pkg/router"
	"github.com/ManuelReschke/CreditFox/internal/pkg/webhookmetrics"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	// Process-wide collaborators, constructed once and injected explicitly.
	cacheClient := cache.NewFromEnv()
	sink := webhookmetrics.NewSink(cacheClient)
	repo := credits.NewRepository(database.GetDB())
	service := credits.NewService(repo, payprovider.NewClientFromEnv(), controllers.TopupConfigFromEnv())
	controllers.Setup(repo, service, webhookmonitor.New(sink), sink)

	// init fiber app
	app := fiber.New(fiber.Config{})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
