package controllers

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/monitor"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payprovider"
	"github.com/ManuelReschke/CreditFox/internal/pkg/webhookmetrics"
)

type webhookDeps struct {
	repo    credits.Repository
	service *credits.Service
	monitor *monitor.Monitor
	sink    *webhookmetrics.Sink
}

var (
	depsMu      sync.Mutex
	currentDeps *webhookDeps
)

// Setup injects the process-wide collaborators. Called once from main; tests
// inject fakes through the same path.
func Setup(repo credits.Repository, service *credits.Service, mon *monitor.Monitor, sink *webhookmetrics.Sink) {
	depsMu.Lock()
	defer depsMu.Unlock()
	currentDeps = &webhookDeps{repo: repo, service: service, monitor: mon, sink: sink}
}

// getWebhookDeps returns the injected collaborators, building default ones
// from env on first use when main did not wire them (dev convenience).
func getWebhookDeps() *webhookDeps {
	depsMu.Lock()
	defer depsMu.Unlock()
	if currentDeps == nil {
		repo := credits.NewRepository(database.GetDB())
		sink := webhookmetrics.NewSink(cache.NewFromEnv())
		currentDeps = &webhookDeps{
			repo:    repo,
			service: credits.NewService(repo, payprovider.NewClientFromEnv(), TopupConfigFromEnv()),
			monitor: monitor.New(sink),
			sink:    sink,
		}
	}
	return currentDeps
}

// TopupConfigFromEnv reads the provider product and redirect configuration.
func TopupConfigFromEnv() credits.TopupConfig {
	return credits.TopupConfig{
		ProductID:  env.GetEnv("PAYPROVIDER_PRODUCT_ID", ""),
		SuccessURL: env.GetEnv("PAYPROVIDER_SUCCESS_URL", ""),
	}
}

// requestUserID reads the user id the auth gateway injected upstream.
// Authentication itself is not this service's concern.
func requestUserID(c *fiber.Ctx) (uint, bool) {
	raw := c.Get("X-User-ID")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
