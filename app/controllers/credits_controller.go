package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
)

// HandleGetBalance returns the caller's credit account.
func HandleGetBalance(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing user identity"})
	}

	deps := getWebhookDeps()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, err := deps.service.GetBalance(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load credit account"})
	}
	return c.Status(fiber.StatusOK).JSON(account)
}

// HandleCreateCheckout starts a manual credit purchase.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing user identity"})
	}

	var body struct {
		Amount decimal.Decimal `json:"amount"`
		Email  string          `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	deps := getWebhookDeps()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	checkout, err := deps.service.CreateCheckout(ctx, userID, body.Email, body.Amount)
	if err != nil {
		if errors.Is(err, credits.ErrAmountOutOfRange) || errors.Is(err, credits.ErrAmountPrecision) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_amount", "message": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Could not create checkout session"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"checkout_id":  checkout.ID,
		"checkout_url": checkout.URL,
	})
}

// HandleUpdateTopupSettings stores the caller's auto-topup configuration.
func HandleUpdateTopupSettings(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing user identity"})
	}

	var body struct {
		Enabled   bool             `json:"enabled"`
		Threshold *int64           `json:"threshold"`
		Amount    *decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	deps := getWebhookDeps()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, err := deps.service.UpdateTopupSettings(ctx, userID, credits.TopupSettings{
		Enabled:   body.Enabled,
		Threshold: body.Threshold,
		Amount:    body.Amount,
	})
	if err != nil {
		if errors.Is(err, credits.ErrAmountOutOfRange) || errors.Is(err, credits.ErrAmountPrecision) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_amount", "message": err.Error()})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_settings", "message": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(account)
}

// HandleConsumeCredits deducts credits for usage and reports any auto-topup
// the new balance triggered.
func HandleConsumeCredits(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing user identity"})
	}

	var body struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
		Email       string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Amount must be a positive integer"})
	}

	deps := getWebhookDeps()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := deps.service.Consume(ctx, userID, body.Amount, body.Description, body.Email)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_balance", "message": "Not enough credits"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to consume credits"})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleWebhookMetrics returns the metrics sink summaries for both order
// event types. Zeroed values when the cache is unavailable.
func HandleWebhookMetrics(c *fiber.Ctx) error {
	deps := getWebhookDeps()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"order_paid":     deps.sink.Summary(EventOrderPaid),
		"order_refunded": deps.sink.Summary(EventOrderRefunded),
	})
}
