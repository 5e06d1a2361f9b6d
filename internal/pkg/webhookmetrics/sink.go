package webhookmetrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
)

const (
	dailyStatsKey  = "webhook:stats:%s:%s" // event type, date YYYY-MM-DD
	hourlyRateKey  = "webhook:rate:%s"     // event type
	dailyStatsTTL  = 48 * time.Hour
	rateWindowSize = time.Hour
)

// Sink records webhook processing observations in the cache server. It sits
// off the critical financial path: when the cache is unavailable every
// operation logs, degrades to a no-op and returns zero values instead of
// propagating an error to the caller.
type Sink struct {
	cache *cache.Client
}

// EventSummary aggregates today's counters for one event type.
type EventSummary struct {
	EventType           string  `json:"event_type"`
	TotalProcessed      int64   `json:"total_processed"`
	SuccessCount        int64   `json:"success_count"`
	FailureCount        int64   `json:"failure_count"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	LastHourRate        int64   `json:"last_hour_rate"`
}

// NewSink creates a metrics sink on top of an injected cache client. A nil
// client yields a permanent no-op sink, which keeps the engine unit-testable
// without a live cache.
func NewSink(c *cache.Client) *Sink {
	return &Sink{cache: c}
}

// RecordEvent increments today's success/failure counters, accumulates
// processing time and appends a timestamp to the rolling last-hour set.
func (s *Sink) RecordEvent(eventType string, success bool, elapsed time.Duration) {
	rdb := s.redis()
	if rdb == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	statsKey := fmt.Sprintf(dailyStatsKey, eventType, now.Format("2006-01-02"))
	rateKey := fmt.Sprintf(hourlyRateKey, eventType)

	field := "failure"
	if success {
		field = "success"
	}

	pipe := rdb.Pipeline()
	pipe.HIncrBy(ctx, statsKey, field, 1)
	pipe.HIncrBy(ctx, statsKey, "processed", 1)
	pipe.HIncrBy(ctx, statsKey, "processing_ms", elapsed.Milliseconds())
	pipe.Expire(ctx, statsKey, dailyStatsTTL)
	pipe.ZAdd(ctx, rateKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.ZRemRangeByScore(ctx, rateKey, "0", fmt.Sprintf("%d", now.Add(-rateWindowSize).UnixMilli()))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn("[WebhookMetrics] Failed to record event: ", err)
	}
}

// Summary returns today's aggregates for an event type. On any cache failure
// it returns a zeroed summary.
func (s *Sink) Summary(eventType string) EventSummary {
	summary := EventSummary{EventType: eventType}
	rdb := s.redis()
	if rdb == nil {
		return summary
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	statsKey := fmt.Sprintf(dailyStatsKey, eventType, now.Format("2006-01-02"))

	stats, err := rdb.HGetAll(ctx, statsKey).Result()
	if err != nil {
		log.Warn("[WebhookMetrics] Failed to read daily stats: ", err)
		return summary
	}

	summary.SuccessCount = parseInt(stats["success"])
	summary.FailureCount = parseInt(stats["failure"])
	summary.TotalProcessed = parseInt(stats["processed"])
	if summary.TotalProcessed > 0 {
		summary.AvgProcessingTimeMs = float64(parseInt(stats["processing_ms"])) / float64(summary.TotalProcessed)
	}

	rateKey := fmt.Sprintf(hourlyRateKey, eventType)
	count, err := rdb.ZCount(ctx, rateKey,
		fmt.Sprintf("%d", now.Add(-rateWindowSize).UnixMilli()),
		fmt.Sprintf("%d", now.UnixMilli())).Result()
	if err != nil {
		log.Warn("[WebhookMetrics] Failed to read hourly rate: ", err)
		return summary
	}
	summary.LastHourRate = count

	return summary
}

func (s *Sink) redis() *redis.Client {
	if s == nil || !s.cache.IsAvailable() {
		return nil
	}
	return s.cache.Redis()
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
