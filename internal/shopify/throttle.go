package shopify

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CallLimitHeader carries the REST leaky bucket state as "used/allowed".
const CallLimitHeader = "X-Shopify-Shop-Api-Call-Limit"

// Throttle slows callers down before the remote bucket overflows.
type Throttle struct {
	// Ratio is the used/allowed fraction at which REST calls pause, and the
	// available/maximum fraction under which query calls pause.
	Ratio    float64
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultThrottle pauses at 80% bucket usage.
func DefaultThrottle() Throttle {
	return Throttle{Ratio: 0.8, Delay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// RESTDelay inspects the call limit header of a REST response.
func (t Throttle) RESTDelay(h http.Header) time.Duration {
	used, allowed, ok := parseCallLimit(h.Get(CallLimitHeader))
	if !ok || t.Ratio <= 0 {
		return 0
	}
	if float64(used)/float64(allowed) >= t.Ratio {
		return t.Delay
	}
	return 0
}

func parseCallLimit(v string) (used, allowed int, ok bool) {
	left, right, found := strings.Cut(strings.TrimSpace(v), "/")
	if !found {
		return 0, 0, false
	}
	u, err1 := strconv.Atoi(strings.TrimSpace(left))
	a, err2 := strconv.Atoi(strings.TrimSpace(right))
	if err1 != nil || err2 != nil || a <= 0 || u < 0 {
		return 0, 0, false
	}
	return u, a, true
}

// ThrottleStatus is the bucket state reported in query responses.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

type queryExtensions struct {
	Extensions struct {
		Cost struct {
			RequestedQueryCost float64         `json:"requestedQueryCost"`
			ThrottleStatus     *ThrottleStatus `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// QueryDelay waits until the bucket is back above the headroom line, capped at MaxDelay.
func (t Throttle) QueryDelay(body []byte) time.Duration {
	var ext queryExtensions
	if err := json.Unmarshal(body, &ext); err != nil {
		return 0
	}
	status := ext.Extensions.Cost.ThrottleStatus
	if status == nil || status.MaximumAvailable <= 0 || status.RestoreRate <= 0 {
		return 0
	}
	floor := status.MaximumAvailable * (1 - t.Ratio)
	if status.CurrentlyAvailable >= floor {
		return 0
	}
	deficit := floor - status.CurrentlyAvailable
	wait := time.Duration(math.Ceil(deficit/status.RestoreRate*1000)) * time.Millisecond
	if t.MaxDelay > 0 && wait > t.MaxDelay {
		wait = t.MaxDelay
	}
	return wait
}
