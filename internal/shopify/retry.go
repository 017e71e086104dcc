package shopify

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Additional-Code/ordersync/internal/config"
)

// RetryPolicy decides how long to wait between attempts.
type RetryPolicy struct {
	// MaxRetries bounds retries after the first attempt.
	MaxRetries int
	// RateLimitBase and RateLimitStep produce Base + (retry-1)*Step when no Retry-After is sent.
	RateLimitBase time.Duration
	RateLimitStep time.Duration
	// ServerErrorSteps are used in order for 5xx and transport failures; the last step repeats.
	ServerErrorSteps []time.Duration
	// Jitter adds a random duration in [0, Jitter) on top of every wait.
	Jitter time.Duration
}

// DefaultRetryPolicy matches the remote platform's documented limits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		RateLimitBase:    time.Second,
		RateLimitStep:    time.Second,
		ServerErrorSteps: []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond, 3500 * time.Millisecond},
	}
}

// RetryPolicyFromConfig builds the policy from the shopify config block.
func RetryPolicyFromConfig(cfg config.Shopify) RetryPolicy {
	p := RetryPolicy{
		MaxRetries:       cfg.MaxRetries,
		RateLimitBase:    cfg.RateLimitBase,
		RateLimitStep:    cfg.RateLimitStep,
		ServerErrorSteps: cfg.ServerErrorSteps,
		Jitter:           cfg.RetryJitter,
	}
	if len(p.ServerErrorSteps) == 0 {
		p.ServerErrorSteps = DefaultRetryPolicy().ServerErrorSteps
	}
	return p
}

// RateLimitDelay is the wait before retry number retry (1-based) after a 429.
// A Retry-After hint is a lower bound.
func (p RetryPolicy) RateLimitDelay(retry int, retryAfter time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := p.RateLimitBase + time.Duration(retry-1)*p.RateLimitStep
	if retryAfter > 0 {
		delay = retryAfter
	}
	return delay + p.jitter()
}

// ServerErrorDelay is the wait before retry number retry (1-based) after a 5xx.
func (p RetryPolicy) ServerErrorDelay(retry int) time.Duration {
	if len(p.ServerErrorSteps) == 0 {
		return p.jitter()
	}
	idx := retry - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.ServerErrorSteps) {
		idx = len(p.ServerErrorSteps) - 1
	}
	return p.ServerErrorSteps[idx] + p.jitter()
}

func (p RetryPolicy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(p.Jitter)))
}

// parseRetryAfter accepts delta-seconds (including fractional values) or an HTTP date.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
