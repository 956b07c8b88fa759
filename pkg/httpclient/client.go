package httpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for a breaker-protected HTTP client.
type Config struct {
	// Name identifies this client in logs and metrics.
	Name string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// BreakerTimeout is how long the breaker stays open before moving to half-open.
	BreakerTimeout time.Duration

	// FailureRatio is the ratio of failures that trips the breaker.
	FailureRatio float64

	// MinRequests is the minimum number of requests before the ratio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns sensible defaults for an outbound transport client.
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		Timeout:        10 * time.Second,
		BreakerTimeout: 30 * time.Second,
		FailureRatio:   0.5,
		MinRequests:    5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "outbound_circuit_breaker_state",
		Help: "Current state of the outbound circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Client is an HTTP client wrapped in a circuit breaker. Repeated failures
// against a flaky endpoint (a dead webhook, a rate-limited Slack workspace)
// trip the breaker so the dispatcher fails fast instead of tying up workers.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	name       string
}

// New creates a breaker-protected HTTP client.
func New(cfg Config, logger *slog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
		name:       cfg.Name,
	}
}

// Do executes the request through the circuit breaker. A 5xx response counts
// as a breaker failure; 4xx responses do not (the endpoint is healthy, the
// request is bad).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}

	// A 5xx comes back with both a response and an error; the caller needs
	// the response to classify the failure.
	return resp, err
}
