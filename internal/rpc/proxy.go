package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mrz1836/dappbridge/internal/rpc"

// breakerOpenFor is how long an endpoint is skipped after tripping.
const breakerOpenFor = 30 * time.Second

// Logger is the logging surface the proxy needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// ProxyConfig configures a Proxy.
type ProxyConfig struct {
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	Retry           RetryConfig
	BreakerFailures int
	HTTPClient      *http.Client
	Logger          Logger
}

// Proxy forwards passive reads to network endpoints. Each endpoint gets its
// own client, token bucket and circuit breaker.
type Proxy struct {
	cfg     ProxyConfig
	limiter *RateLimiter
	tracer  trace.Tracer

	mu       sync.Mutex
	clients  map[string]*Client
	breakers map[string]*gobreaker.CircuitBreaker[json.RawMessage]
}

// NewProxy creates a proxy.
func NewProxy(cfg ProxyConfig) *Proxy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	return &Proxy{
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
		tracer:   otel.Tracer(tracerName),
		clients:  make(map[string]*Client),
		breakers: make(map[string]*gobreaker.CircuitBreaker[json.RawMessage]),
	}
}

// Forward sends method and params to endpoint and returns the node's raw result.
// A node-reported error is returned as *Error.
func (p *Proxy) Forward(ctx context.Context, endpoint string, method Method, params json.RawMessage) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "rpc.forward",
		trace.WithAttributes(
			attribute.String("rpc.method", string(method)),
			attribute.String("rpc.endpoint", endpoint),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	client, breaker := p.endpoint(endpoint)

	result, err := Retry(ctx, p.cfg.Retry, func() (json.RawMessage, error) {
		if err := p.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
		return breaker.Execute(func() (json.RawMessage, error) {
			return client.Call(ctx, string(method), params)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// BreakerState reports the circuit state for endpoint.
func (p *Proxy) BreakerState(endpoint string) gobreaker.State {
	_, b := p.endpoint(endpoint)
	return b.State()
}

func (p *Proxy) endpoint(url string) (*Client, *gobreaker.CircuitBreaker[json.RawMessage]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.clients[url]
	if !ok {
		c = NewClient(url, p.cfg.HTTPClient)
		p.clients[url] = c
	}

	b, ok := p.breakers[url]
	if !ok {
		threshold := uint32(p.cfg.BreakerFailures) //nolint:gosec // G115: validated positive in NewProxy
		b = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
			Name:    url,
			Timeout: breakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// The node answering with an error object is a healthy endpoint.
			IsSuccessful: func(err error) bool {
				var rpcErr *Error
				return err == nil || errors.As(err, &rpcErr)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if p.cfg.Logger != nil {
					p.cfg.Logger.Info("circuit breaker %s: %s -> %s", name, from, to)
				}
			},
		})
		p.breakers[url] = b
	}
	return c, b
}
