package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/config"
)

const (
	// AccessTokenHeader authenticates admin API calls.
	AccessTokenHeader = "X-Shopify-Access-Token"

	maxResponseSize = 10 << 20
	maxErrorBody    = 512
)

var clientTracer = otel.Tracer("github.com/Additional-Code/ordersync/internal/shopify")

// Module provides the credential resolver and the rate-limited client.
var Module = fx.Provide(NewResolver, New)

// Request is a call relative to /admin/api/{version}/.
type Request struct {
	Method string
	Path   string
	Params url.Values
	Body   []byte
}

// Response is a fully read 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient *http.Client
	Policy     *RetryPolicy
	Throttle   *Throttle
	Clock      clock.Clock
	Logger     *zap.Logger
	UserAgent  string
	// BaseURL replaces https://{domain}, e.g. for a local proxy.
	BaseURL string
}

// Client talks to the remote admin API with retry and throttling.
type Client struct {
	http      *http.Client
	policy    RetryPolicy
	throttle  Throttle
	clock     clock.Clock
	logger    *zap.Logger
	userAgent string
	baseURL   string
	retries   metric.Int64Counter
}

// New builds the client from configuration.
func New(cfg config.Config, logger *zap.Logger) *Client {
	policy := RetryPolicyFromConfig(cfg.Shopify)
	throttle := Throttle{
		Ratio:    cfg.Shopify.ThrottleRatio,
		Delay:    cfg.Shopify.ThrottleDelay,
		MaxDelay: cfg.Shopify.MaxThrottleDelay,
	}
	return NewClient(Options{
		HTTPClient: &http.Client{Timeout: cfg.Shopify.Timeout},
		Policy:     &policy,
		Throttle:   &throttle,
		Logger:     logger,
		UserAgent:  cfg.Shopify.UserAgent,
		BaseURL:    cfg.Shopify.BaseURL,
	})
}

// NewClient builds a client from explicit options.
func NewClient(opts Options) *Client {
	c := &Client{
		http:      opts.HTTPClient,
		policy:    DefaultRetryPolicy(),
		throttle:  DefaultThrottle(),
		clock:     opts.Clock,
		logger:    opts.Logger,
		userAgent: opts.UserAgent,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Policy != nil {
		c.policy = *opts.Policy
	}
	if opts.Throttle != nil {
		c.throttle = *opts.Throttle
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	counter, err := otel.Meter("github.com/Additional-Code/ordersync/internal/shopify").
		Int64Counter("ordersync.http.retries", metric.WithDescription("Retried remote API calls"))
	if err == nil {
		c.retries = counter
	}

	return c
}

// Do executes req, retrying 429 and 5xx responses according to the retry policy.
func (c *Client) Do(ctx context.Context, cred Credential, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := clientTracer.Start(ctx, "shopify.Do", trace.WithAttributes(
		attribute.Int("store.number", cred.StoreNumber),
		attribute.String("http.method", method),
		attribute.String("remote.path", req.Path),
	))
	defer span.End()

	endpoint := c.endpoint(cred, req.Path, req.Params)
	logger := c.logger.With(zap.Int("store", cred.StoreNumber), zap.String("path", req.Path))

	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, cred, method, endpoint, req.Body)

		var wait time.Duration
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				span.RecordError(ctxErr)
				span.SetStatus(codes.Error, "context done")
				return nil, ctxErr
			}
			lastStatus, lastErr = 0, err
			wait = c.policy.ServerErrorDelay(attempt)
		case resp.Status >= 200 && resp.Status < 300:
			span.SetAttributes(attribute.Int("http.status_code", resp.Status), attribute.Int("attempts", attempt))
			if d := c.throttle.RESTDelay(resp.Header); d > 0 {
				logger.Debug("call limit near capacity, pausing", zap.String("call_limit", resp.Header.Get(CallLimitHeader)), zap.Duration("wait", d))
				if err := c.clock.Sleep(ctx, d); err != nil {
					return nil, err
				}
			}
			return resp, nil
		case resp.Status == http.StatusTooManyRequests:
			lastStatus, lastErr = resp.Status, nil
			hint := parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
			wait = c.policy.RateLimitDelay(attempt, hint)
		case resp.Status >= 500:
			lastStatus, lastErr = resp.Status, nil
			wait = c.policy.ServerErrorDelay(attempt)
		default:
			perr := &PermanentHTTPError{Status: resp.Status, Body: truncate(resp.Body, maxErrorBody)}
			span.RecordError(perr)
			span.SetStatus(codes.Error, "permanent http error")
			return nil, perr
		}

		if attempt > c.policy.MaxRetries {
			terr := &TransientHTTPError{Status: lastStatus, Attempts: attempt, Err: lastErr}
			span.RecordError(terr)
			span.SetStatus(codes.Error, "retries exhausted")
			return nil, terr
		}

		logger.Warn("retrying remote call",
			zap.Int("status", lastStatus),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		if c.retries != nil {
			c.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", lastStatus)))
		}
		if err := c.clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// ListOrders fetches one page of orders.
func (c *Client) ListOrders(ctx context.Context, cred Credential, q PageQuery) (*OrderPage, error) {
	resp, err := c.Do(ctx, cred, Request{Method: http.MethodGet, Path: "orders.json", Params: q.Values()})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("decode orders page: %w", err)
	}

	page := &OrderPage{Orders: envelope.Orders}
	cursor, ok, err := NextCursor(resp.Header)
	if err != nil {
		c.logger.Warn("ignoring malformed pagination header",
			zap.Int("store", cred.StoreNumber),
			zap.Error(err),
		)
		return page, nil
	}
	page.NextCursor, page.HasNext = cursor, ok

	return page, nil
}

// CountOrders returns the remote order count across every status.
func (c *Client) CountOrders(ctx context.Context, cred Credential) (int, error) {
	params := url.Values{}
	params.Set("status", "any")
	resp, err := c.Do(ctx, cred, Request{Method: http.MethodGet, Path: "orders/count.json", Params: params})
	if err != nil {
		return 0, err
	}

	var payload struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return 0, fmt.Errorf("decode order count: %w", err)
	}
	if payload.Count == nil {
		return 0, errors.New("decode order count: missing count")
	}

	return *payload.Count, nil
}

// Query runs a GraphQL admin query and returns its data member. The reported
// bucket state is honoured before returning.
func (c *Client) Query(ctx context.Context, cred Credential, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	resp, err := c.Do(ctx, cred, Request{Method: http.MethodPost, Path: "graphql.json", Body: body})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	if d := c.throttle.QueryDelay(resp.Body); d > 0 {
		c.logger.Debug("query bucket low, pausing", zap.Int("store", cred.StoreNumber), zap.Duration("wait", d))
		if err := c.clock.Sleep(ctx, d); err != nil {
			return nil, err
		}
	}

	if len(payload.Errors) > 0 {
		msgs := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("query failed: %s", strings.Join(msgs, "; "))
	}

	return payload.Data, nil
}

func (c *Client) send(ctx context.Context, cred Credential, method, endpoint string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	setHeader(httpReq.Header, "Accept", "application/json")
	setHeader(httpReq.Header, AccessTokenHeader, cred.Token)
	setHeader(httpReq.Header, "User-Agent", c.userAgent)
	if len(body) > 0 {
		setHeader(httpReq.Header, "Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) endpoint(cred Credential, path string, params url.Values) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + cred.Domain
	}
	u := base + "/admin/api/" + cred.APIVersion + "/" + strings.TrimPrefix(path, "/")
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// setHeader never writes an empty value.
func setHeader(h http.Header, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	h.Set(key, value)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
