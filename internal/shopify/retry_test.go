package shopify

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelays(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Second, p.RateLimitDelay(1, 0))
	assert.Equal(t, 2*time.Second, p.RateLimitDelay(2, 0))
	assert.Equal(t, 3*time.Second, p.RateLimitDelay(3, 0))
	assert.Equal(t, 5*time.Second, p.RateLimitDelay(1, 5*time.Second))

	assert.Equal(t, 800*time.Millisecond, p.ServerErrorDelay(1))
	assert.Equal(t, 1600*time.Millisecond, p.ServerErrorDelay(2))
	assert.Equal(t, 3500*time.Millisecond, p.ServerErrorDelay(3))
	assert.Equal(t, 3500*time.Millisecond, p.ServerErrorDelay(7))
}

func TestRetryPolicyJitterNeverShortens(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = 100 * time.Millisecond

	for i := 0; i < 50; i++ {
		d := p.RateLimitDelay(1, 2*time.Second)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2100*time.Millisecond)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2*time.Second, parseRetryAfter("2", now))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
}

func TestThrottleRESTDelay(t *testing.T) {
	th := DefaultThrottle()
	h := http.Header{}

	h.Set(CallLimitHeader, "10/40")
	assert.Zero(t, th.RESTDelay(h))

	h.Set(CallLimitHeader, "32/40")
	assert.Equal(t, 500*time.Millisecond, th.RESTDelay(h))

	h.Set(CallLimitHeader, "garbage")
	assert.Zero(t, th.RESTDelay(h))
}

func TestThrottleQueryDelay(t *testing.T) {
	th := DefaultThrottle()

	healthy := []byte(`{"extensions":{"cost":{"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":900,"restoreRate":50}}}}`)
	assert.Zero(t, th.QueryDelay(healthy))

	// floor is 200 points; 100 missing at 50/s is two seconds
	low := []byte(`{"extensions":{"cost":{"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":100,"restoreRate":50}}}}`)
	assert.Equal(t, 2*time.Second, th.QueryDelay(low))

	empty := []byte(`{"extensions":{"cost":{"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":0,"restoreRate":1}}}}`)
	assert.Equal(t, th.MaxDelay, th.QueryDelay(empty))

	assert.Zero(t, th.QueryDelay([]byte(`{"data":{}}`)))
}
