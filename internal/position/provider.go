package position

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldvigil/fieldvigil/internal/provider/resilience"
)

// defaultAcquireTimeout bounds a single fix acquisition.
const defaultAcquireTimeout = 20 * time.Second

// Provider yields the current device position.
type Provider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSourceConfig holds configuration for an HTTP position source.
type HTTPSourceConfig struct {
	// URL of the endpoint serving the latest fix as JSON.
	URL string

	// HTTPClient used for requests. If nil, a resilient client bounded by
	// the acquisition timeout is created.
	HTTPClient HTTPDoer

	// AcquireTimeout overrides the default per-fix deadline.
	AcquireTimeout time.Duration

	// Now is the clock used when the source omits a timestamp. Defaults to
	// time.Now.
	Now func() time.Time
}

// HTTPSource reads fixes from a local location broker, typically the
// companion process that owns the platform location APIs.
type HTTPSource struct {
	url            string
	httpClient     HTTPDoer
	acquireTimeout time.Duration
	now            func() time.Time
}

// NewHTTPSource creates a position provider backed by an HTTP endpoint.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "position",
			Timeout: cfg.AcquireTimeout,
		})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &HTTPSource{
		url:            cfg.URL,
		httpClient:     cfg.HTTPClient,
		acquireTimeout: cfg.AcquireTimeout,
		now:            cfg.Now,
	}
}

// CurrentPosition fetches the latest fix from the broker.
func (s *HTTPSource) CurrentPosition(ctx context.Context) (Position, error) {
	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return Position{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Position{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return Position{}, ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return Position{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var pos Position
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return Position{}, fmt.Errorf("decode position: %w", err)
	}
	if pos.At.IsZero() {
		pos.At = s.now()
	}
	return pos, nil
}
