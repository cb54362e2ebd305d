package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/httperr"
	"github.com/iliyamo/auth-service/internal/queue"
)

// AbuseConfig tunes the abuse detector.
type AbuseConfig struct {
	Threshold     int           // failed requests that trigger a block
	Window        time.Duration // counting window started by the first failure
	Block         time.Duration // block length measured from the first failure
	SweepInterval time.Duration
}

func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		Threshold:     20,
		Window:        time.Minute,
		Block:         5 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

type abuseEntry struct {
	count int
	start time.Time
}

// AbuseDetector blocks client IPs that keep producing 401 responses.  Each
// IP has at most one entry holding a failure count and the time of the first
// failure.  The window is fixed, not rolling: an entry older than Window is
// discarded on the next request unless it has reached Threshold, in which
// case the IP is rejected until Block has elapsed since the first failure.
type AbuseDetector struct {
	cfg       AbuseConfig
	publisher queue.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*abuseEntry
	now     func() time.Time
}

func NewAbuseDetector(cfg AbuseConfig, publisher queue.Publisher, logger *slog.Logger) *AbuseDetector {
	def := DefaultAbuseConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AbuseDetector{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		entries:   make(map[string]*abuseEntry),
		now:       time.Now,
	}
}

// SetClock replaces the time source.  Tests use it to move time forward.
func (d *AbuseDetector) SetClock(now func() time.Time) {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}

// Middleware rejects blocked IPs with 429 and records every 401 produced
// further down the chain.  Errors from the handler are rendered here so the
// final status can be observed.
func (d *AbuseDetector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := clientIP(c)
			if remaining, blocked := d.Check(ip); blocked {
				secs := int(math.Ceil(remaining.Seconds()))
				if secs < 1 {
					secs = 1
				}
				return httperr.TooManyRequests("InfiniteLoopDetected",
					"Too many failed requests. Please try again later.",
					c.Request().URL.Path, "loop-detection", secs)
			}

			if err := next(c); err != nil {
				c.Error(err)
			}
			if c.Response().Status == http.StatusUnauthorized {
				if d.RecordFailure(ip) {
					d.publishBlocked(c, ip)
				}
			}
			return nil
		}
	}
}

// Check reports whether ip is blocked and for how long.  As a side effect a
// stale, unblocked entry is dropped.
func (d *AbuseDetector) Check(ip string) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[ip]
	if !ok {
		return 0, false
	}
	elapsed := d.now().Sub(e.start)
	if e.count >= d.cfg.Threshold && elapsed < d.cfg.Block {
		return d.cfg.Block - elapsed, true
	}
	if elapsed > d.cfg.Window {
		delete(d.entries, ip)
	}
	return 0, false
}

// RecordFailure counts one failed request for ip.  It returns true when this
// failure moved the IP into the blocked state.
func (d *AbuseDetector) RecordFailure(ip string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[ip]
	if !ok {
		d.entries[ip] = &abuseEntry{count: 1, start: d.now()}
		return d.cfg.Threshold == 1
	}
	e.count++
	return e.count == d.cfg.Threshold
}

// Sweep drops entries whose window has passed and whose block, if any, has
// expired.  It returns the number of entries removed.
func (d *AbuseDetector) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for ip, e := range d.entries {
		elapsed := now.Sub(e.start)
		if elapsed <= d.cfg.Window {
			continue
		}
		if e.count >= d.cfg.Threshold && elapsed < d.cfg.Block {
			continue
		}
		delete(d.entries, ip)
		removed++
	}
	return removed
}

// Len returns the number of tracked IPs.
func (d *AbuseDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (d *AbuseDetector) Run(ctx context.Context) error {
	t := time.NewTicker(d.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := d.Sweep(); n > 0 {
				d.logger.Debug("abuse detector sweep", slog.Int("removed", n))
			}
		}
	}
}

func (d *AbuseDetector) publishBlocked(c echo.Context, ip string) {
	d.logger.Warn("blocking client after repeated authentication failures",
		slog.String("ip", ip), slog.String("path", c.Request().URL.Path))
	ev := queue.AuthEvent{
		Type:       queue.EventAbuseBlocked,
		IP:         ip,
		RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
		Detail:     c.Request().Method + " " + c.Request().URL.Path,
		OccurredAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.logger.Warn("publish abuse event", slog.Any("error", err))
		}
	}()
}
