package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/httperr"
)

var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RateLimit returns the generic request limiter.  With a Redis client it is
// a distributed token bucket; without one it falls back to an in-process
// fixed window per client IP.  A Redis error lets the request through.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, ipx echo.IPExtractor, logger *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passThrough
	}
	if rdb == nil {
		return echo.WrapMiddleware(httprate.Limit(cfg.Capacity, cfg.FallbackWindow,
			httprate.WithKeyFuncs(keyByClientIP(ipx)),
			httprate.WithLimitHandler(limitHandler("RateLimitExceeded", "rate limit exceeded", cfg.FallbackWindow)),
		))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			args := []any{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				if cfg.Debug {
					logger.Warn("ratelimit: redis error", slog.String("key", key), slog.Any("error", err))
				}
				return next(c)
			}
			arr, ok := vals.([]any)
			if !ok || len(arr) != 3 {
				if cfg.Debug {
					logger.Warn("ratelimit: unexpected script result", slog.String("key", key), slog.String("result", fmt.Sprintf("%#v", vals)))
				}
				return next(c)
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				if cfg.Debug {
					logger.Info("ratelimit: block", slog.String("key", key), slog.Int64("retry_ms", retryMs))
				}
				return httperr.TooManyRequests("RateLimitExceeded", "rate limit exceeded",
					c.Request().URL.Path, "rate-limit", secs)
			}
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

// LoginLimiter caps login attempts per client IP, 5 per 15 minutes by default.
func LoginLimiter(limit int, window time.Duration, ipx echo.IPExtractor) echo.MiddlewareFunc {
	return echo.WrapMiddleware(httprate.Limit(limit, window,
		httprate.WithKeyFuncs(keyByClientIP(ipx)),
		httprate.WithLimitHandler(limitHandler("TooManyRequests",
			"Too many authentication attempts, please try again after 15 minutes", window)),
	))
}

// keyByClientIP keys httprate on the same client address echo resolves,
// so forwarding headers are only honoured from trusted proxies.
func keyByClientIP(ipx echo.IPExtractor) httprate.KeyFunc {
	if ipx == nil {
		ipx = echo.ExtractIPDirect()
	}
	return func(r *http.Request) (string, error) {
		return ipx(r), nil
	}
}

func limitHandler(typ, message string, window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		retry := int(window.Seconds())
		if v, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && v > 0 {
			retry = v
		}
		httperr.Write(w, httperr.TooManyRequests(typ, message, r.URL.Path, "rate-limit", retry))
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := clientIP(c)
	route := c.Request().Method + " " + c.Path()

	// the limiter runs ahead of authentication, so only the client address
	// and the route are known here
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	default: // "ip_route"
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
