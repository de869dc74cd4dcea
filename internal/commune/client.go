// Package commune watches for administrative municipality changes using the
// public Géorisques registry and notifies the agent when a boundary is
// crossed during a round.
package commune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldvigil/fieldvigil/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL of the Géorisques API.
	DefaultBaseURL = "https://georisques.gouv.fr/api/v1"

	// defaultRadiusMeters is the lookup radius passed to the registry.
	defaultRadiusMeters = 20
)

// ErrNoData is returned when the registry has no municipality for the
// queried position.
var ErrNoData = errors.New("no municipality data for position")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Géorisques client.
type ClientConfig struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// HTTPClient used for requests. If nil, a resilient client with a 10s
	// timeout is created.
	HTTPClient HTTPDoer

	// RadiusMeters overrides the default lookup radius.
	RadiusMeters int
}

// Client queries the Géorisques gaspar registry.
type Client struct {
	baseURL      string
	httpClient   HTTPDoer
	radiusMeters int
}

// NewClient creates a Géorisques client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "georisques",
			Timeout: 10 * time.Second,
		})
	}
	radius := cfg.RadiusMeters
	if radius == 0 {
		radius = defaultRadiusMeters
	}

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   httpClient,
		radiusMeters: radius,
	}
}

type gasparResponse struct {
	Data []struct {
		LibelleCommune string `json:"libelle_commune"`
		CodeInsee      string `json:"code_insee"`
	} `json:"data"`
}

// CommuneAt returns the municipality name at the given position. The
// registry expects longitude first in the latlon parameter.
func (c *Client) CommuneAt(ctx context.Context, lat, lon float64) (string, error) {
	endpoint := fmt.Sprintf("%s/gaspar/risques?latlon=%s,%s&rayon=%d",
		c.baseURL,
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		c.radiusMeters,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query georisques: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from georisques", resp.StatusCode)
	}

	var body gasparResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode georisques response: %w", err)
	}
	if len(body.Data) == 0 {
		return "", ErrNoData
	}
	return body.Data[0].LibelleCommune, nil
}
