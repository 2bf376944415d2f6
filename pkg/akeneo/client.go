package akeneo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/pimsync/pkg/config"
	"github.com/angelmondragon/pimsync/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("akeneo base url is required")
	errTokenRequired   = errors.New("akeneo api token is required")

	// ErrNotFound signals the product no longer exists in the PIM. Callers
	// must treat this differently from transport failures.
	ErrNotFound = errors.New("akeneo: product not found")
)

// Product is the authoritative PIM representation fetched by the worker.
type Product struct {
	UUID       string                    `json:"uuid"`
	Identifier string                    `json:"identifier"`
	Enabled    bool                      `json:"enabled"`
	Family     *string                   `json:"family"`
	Values     map[string][]ProductValue `json:"values"`
}

// ProductValue is a single localized/scoped attribute value.
type ProductValue struct {
	Locale *string         `json:"locale"`
	Scope  *string         `json:"scope"`
	Data   json.RawMessage `json:"data"`
}

// FirstValue returns the raw data of the first value for the attribute, or
// nil when the attribute is absent.
func (p *Product) FirstValue(attribute string) json.RawMessage {
	if p == nil {
		return nil
	}
	values, ok := p.Values[attribute]
	if !ok || len(values) == 0 {
		return nil
	}
	return values[0].Data
}

// Client talks to the Akeneo REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient validates the configuration and builds the API client. Every
// request carries the configured fetch timeout.
func NewClient(ctx context.Context, cfg config.AkeneoConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, errTokenRequired
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("akeneo client initialized (%s)", baseURL))
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FetchProduct loads a single product by identifier. Returns ErrNotFound on
// 404 and a transport error on network failures or non-2xx responses.
func (c *Client) FetchProduct(ctx context.Context, identifier string) (*Product, error) {
	if c == nil {
		return nil, errors.New("akeneo client not initialized")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, errors.New("product identifier is required")
	}

	endpoint := fmt.Sprintf("%s/api/rest/v1/products/%s", c.baseURL, url.PathEscape(identifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("fetch product %s: status %d: %s", identifier, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", identifier, err)
	}
	return &product, nil
}

// Ping verifies the API is reachable by probing the product listing with a
// minimal page size.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("akeneo client not initialized")
	}
	endpoint := c.baseURL + "/api/rest/v1/products?limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("akeneo ping: status %d", resp.StatusCode)
	}
	return nil
}
