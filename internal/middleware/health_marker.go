package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request stats, read back by the health endpoints.
const (
	KeyReqTotal  = "health:cdv:req_total"
	KeyReqErrors = "health:cdv:req_errors"
	KeyResTime   = "health:cdv:res_time_total"
	KeyResCount  = "health:cdv:res_count"
	KeyStartTime = "health:cdv:start_time"
	KeyLastReq   = "health:cdv:last_request"
	KeyErrorLog  = "health:cdv:error_log"

	errorLogSize = 100
)

// HealthMarker records request stats in Redis (skip /, /health*, /metrics, favicon).
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || path == "/metrics" || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		_, _ = rdb.Set(ctx, KeyLastReq, b, 0).Result()
		_, _ = rdb.Incr(ctx, KeyReqTotal).Result()

		err := c.Next()

		ms := time.Since(start).Milliseconds()
		_, _ = rdb.Incr(ctx, KeyResCount).Result()
		_, _ = rdb.IncrByFloat(ctx, KeyResTime, float64(ms)).Result()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		if status >= 500 {
			_, _ = rdb.Incr(ctx, KeyReqErrors).Result()
			entry := map[string]interface{}{
				"time":     time.Now(),
				"method":   c.Method(),
				"path":     path,
				"status":   status,
				"trace_id": GetTraceID(c),
			}
			if err != nil {
				entry["error"] = err.Error()
			}
			eb, _ := json.Marshal(entry)
			rdb.LPush(ctx, KeyErrorLog, eb)
			rdb.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
		}
		return err
	}
}
