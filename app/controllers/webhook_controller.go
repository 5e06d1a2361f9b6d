package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/monitor"
)

const (
	EventOrderPaid     = "order.paid"
	EventOrderRefunded = "order.refunded"
)

// minorUnitFactor converts provider minor-unit amounts (cents) into major
// currency units before any credit math runs.
var minorUnitFactor = decimal.NewFromInt(100)

type webhookEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Object    json.RawMessage `json:"object"`
}

type orderEvent struct {
	ID             string           `json:"id" validate:"required"`
	CustomerID     string           `json:"customerId"`
	ProductID      string           `json:"productId"`
	TotalAmount    decimal.Decimal  `json:"totalAmount"`
	RefundedAmount *decimal.Decimal `json:"refundedAmount"`
	Currency       string           `json:"currency" validate:"required,len=3"`
	Metadata       orderMetadata    `json:"metadata" validate:"-"`
	CheckoutID     string           `json:"checkoutId"`
}

// orderMetadata is the loosely-typed key/value map our checkouts attach to
// provider orders, parsed strictly at the boundary so only validated data
// reaches the engines.
type orderMetadata struct {
	UserID    string `json:"userId" validate:"required,numeric"`
	Amount    string `json:"amount"`
	AutoTopup string `json:"auto_topup"`
	UserName  string `json:"userName"`
}

// HandleProviderWebhook ingests payment provider events. Signatures are
// verified upstream at the gateway. Responses signal redelivery: 200 means
// handled (including terminal, uncorrectable data), 5xx means transient
// failure and the provider will deliver the event again.
func HandleProviderWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		log.Error("[Webhook] Unparseable webhook payload: ", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	eventType := strings.TrimSpace(envelope.EventType)
	deliveryID := strings.TrimSpace(envelope.ID)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	deps := getWebhookDeps()

	// Forensic audit trail, write-once. Failures must not block the ledger.
	if err := deps.repo.CreateWebhookEventLog(&models.WebhookEventLog{
		EventType:   eventType,
		ExternalID:  deliveryID,
		PayloadJSON: string(rawBody),
	}); err != nil {
		log.Error("[Webhook] Failed to persist webhook event log",
			" delivery_id=", deliveryID, " err=", err)
	}

	switch eventType {
	case EventOrderPaid:
		return handleOrderPaid(c, ctx, deps, envelope.Object)
	case EventOrderRefunded:
		return handleOrderRefunded(c, ctx, deps, envelope.Object)
	default:
		log.Info("[Webhook] Ignoring unhandled event type",
			" event_type=", eventType, " delivery_id=", deliveryID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
}

func handleOrderPaid(c *fiber.Ctx, ctx context.Context, deps *webhookDeps, object json.RawMessage) error {
	event, err := parseOrderEvent(object)
	if err != nil {
		// Terminal: malformed events are not redelivered, they are kept in
		// the webhook event log for manual replay.
		log.Error("[Webhook] Invalid order.paid payload: ", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_payload"})
	}

	if err := validator.New().Struct(&event.Metadata); err != nil {
		log.Error("[Webhook] order.paid metadata failed validation",
			" order_id=", event.ID, " err=", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_metadata"})
	}
	userID, err := strconv.ParseUint(event.Metadata.UserID, 10, 32)
	if err != nil || userID == 0 {
		log.Error("[Webhook] order.paid metadata has no usable user id",
			" order_id=", event.ID, " user_id=", event.Metadata.UserID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_metadata"})
	}

	amount := event.TotalAmount.Div(minorUnitFactor)
	input := credits.OrderPaidInput{
		ExternalPaymentID:  event.ID,
		UserID:             uint(userID),
		Amount:             amount,
		Currency:           strings.ToUpper(event.Currency),
		ProductID:          event.ProductID,
		CreditsGranted:     credits.CreditsFromAmount(amount),
		ExternalCustomerID: event.CustomerID,
		CheckoutID:         event.CheckoutID,
	}

	result, err := monitor.Run(deps.monitor, EventOrderPaid, event.ID, func() (*credits.GrantResult, error) {
		return deps.service.HandleOrderPaid(ctx, input)
	})
	if err != nil {
		if errors.Is(err, credits.ErrInvalidOrderMetadata) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_metadata"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "grant_failed"})
	}

	deps.monitor.DetectDuplicateWebhook(EventOrderPaid, event.ID, result.AlreadyProcessed)
	return c.Status(fiber.StatusOK).JSON(result)
}

func handleOrderRefunded(c *fiber.Ctx, ctx context.Context, deps *webhookDeps, object json.RawMessage) error {
	event, err := parseOrderEvent(object)
	if err != nil {
		log.Error("[Webhook] Invalid order.refunded payload: ", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_payload"})
	}

	// Some providers omit refundedAmount on full refunds; fall back to the
	// order total.
	reported := event.TotalAmount
	if event.RefundedAmount != nil {
		reported = *event.RefundedAmount
	}
	reported = reported.Div(minorUnitFactor)
	total := event.TotalAmount.Div(minorUnitFactor)

	deps.monitor.DetectAnomalousRefund(reported, total, event.ID)

	result, err := monitor.Run(deps.monitor, EventOrderRefunded, event.ID, func() (*credits.RefundResult, error) {
		return deps.service.HandleOrderRefunded(ctx, credits.OrderRefundedInput{
			ExternalPaymentID:   event.ID,
			ReportedRefundTotal: reported,
		})
	})
	if err != nil {
		if errors.Is(err, credits.ErrPaymentNotFound) || errors.Is(err, credits.ErrRefundExceedsPayment) {
			// Terminal data errors: acknowledged so the provider stops
			// redelivering, reconciled manually via logs.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "refund_rejected"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "refund_failed"})
	}

	deps.monitor.DetectDuplicateWebhook(EventOrderRefunded, event.ID, result.AlreadyProcessed)
	return c.Status(fiber.StatusOK).JSON(result)
}

func parseOrderEvent(object json.RawMessage) (*orderEvent, error) {
	var event orderEvent
	if err := json.Unmarshal(object, &event); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&event); err != nil {
		return nil, err
	}
	return &event, nil
}
