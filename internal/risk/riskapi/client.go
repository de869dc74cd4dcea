// Package riskapi provides the client for the remote risk API consumed by
// the background engine: nearby-risk queries, session renewal, and per-mode
// system settings.
package riskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fieldvigil/fieldvigil/internal/auth"
	"github.com/fieldvigil/fieldvigil/internal/provider/resilience"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the risk API client.
type ClientConfig struct {
	// BaseURL of the API, e.g. "https://api.example.org/api".
	BaseURL string

	// HTTPClient used for requests. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for individual requests when no HTTPClient is supplied.
	// Default: 10s.
	Timeout time.Duration
}

// Client is a risk API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a risk API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "riskapi",
			Timeout: timeout,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// NearbyRisks fetches the risks within radiusKm of the given position.
// Returns risk.ErrUnauthorized when the access token is rejected.
func (c *Client) NearbyRisks(ctx context.Context, lat, lng, radiusKm float64, accessToken string) ([]risk.Risk, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	endpoint := fmt.Sprintf("%s/risks/nearby?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch nearby risks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, risk.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from nearby risks endpoint", resp.StatusCode)
	}

	var risks []risk.Risk
	if err := json.NewDecoder(resp.Body).Decode(&risks); err != nil {
		return nil, fmt.Errorf("decode nearby risks response: %w", err)
	}
	return risks, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (auth.Session, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return auth.Session{}, fmt.Errorf("encode refresh request: %w", err)
	}

	endpoint := c.baseURL + "/auth/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return auth.Session{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.Session{}, fmt.Errorf("refresh session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return auth.Session{}, fmt.Errorf("unexpected status %d from refresh endpoint", resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return auth.Session{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return auth.Session{}, fmt.Errorf("refresh endpoint returned no access token")
	}

	return auth.Session{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

// ModeSettings fetches the public per-mode tracking parameters.
func (c *Client) ModeSettings(ctx context.Context) ([]tournee.Setting, error) {
	endpoint := c.baseURL + "/system-settings/public/all"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch mode settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from system settings endpoint", resp.StatusCode)
	}

	var settings []tournee.Setting
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("decode system settings response: %w", err)
	}
	return settings, nil
}
