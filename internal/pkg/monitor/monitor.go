package monitor

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CreditFox/internal/pkg/webhookmetrics"
)

// anomalyTolerance absorbs provider-side rounding and fee adjustments before
// a refund total is flagged as anomalous.
var anomalyTolerance = decimal.NewFromFloat(1.1)

// Monitor wraps webhook event handlers with timing, logging and anomaly
// detection. It holds an injected metrics sink instead of package state so
// handlers stay unit-testable.
type Monitor struct {
	sink *webhookmetrics.Sink
}

func New(sink *webhookmetrics.Sink) *Monitor {
	return &Monitor{sink: sink}
}

// Run times the handler, records the outcome in the metrics sink and logs it.
// The handler's error is returned unchanged; only metrics failures are
// swallowed (inside the sink itself).
func Run[T any](m *Monitor, eventType, orderID string, handler func() (T, error)) (T, error) {
	start := time.Now()
	result, err := handler()
	elapsed := time.Since(start)

	if err != nil {
		log.Error("[WebhookMonitor] Event processing failed",
			" event_type=", eventType, " order_id=", orderID,
			" elapsed_ms=", elapsed.Milliseconds(), " err=", err)
		m.sink.RecordEvent(eventType, false, elapsed)
		return result, err
	}

	log.Info("[WebhookMonitor] Event processed",
		" event_type=", eventType, " order_id=", orderID,
		" elapsed_ms=", elapsed.Milliseconds())
	m.sink.RecordEvent(eventType, true, elapsed)
	return result, nil
}

// DetectAnomalousRefund flags refund totals above the original amount or more
// than 10% over it. Observational only: the refund engine performs its own
// hard rejection.
func (m *Monitor) DetectAnomalousRefund(refundAmount, totalAmount decimal.Decimal, orderID string) bool {
	anomalous := refundAmount.GreaterThan(totalAmount)
	if !anomalous && totalAmount.IsPositive() {
		anomalous = refundAmount.Div(totalAmount).GreaterThan(anomalyTolerance)
	}
	if anomalous {
		log.Warn("[WebhookMonitor] Anomalous refund amount",
			" order_id=", orderID,
			" refund=", refundAmount.StringFixed(2),
			" total=", totalAmount.StringFixed(2))
	}
	return anomalous
}

// DetectDuplicateWebhook logs when a handler reported an event as already
// processed. Observational only.
func (m *Monitor) DetectDuplicateWebhook(eventType, orderID string, isProcessed bool) bool {
	if !isProcessed {
		return false
	}
	log.Info("[WebhookMonitor] Duplicate webhook delivery",
		" event_type=", eventType, " order_id=", orderID)
	return true
}
