package sot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrSourceUnavailable marks a failure to reach the source-of-truth service.
// It is a remediation-capability failure, distinct from detection failures,
// and never feeds a guard's consecutive-failure counter.
var ErrSourceUnavailable = errors.New("source of truth unavailable")

// DefaultTimeout bounds each fetch against the configuration service.
const DefaultTimeout = 10 * time.Second

// DesiredState is the authoritative payload for a monitored resource.
type DesiredState struct {
	Data map[string]interface{} `json:"data"`
	Hash string                 `json:"hash"`
}

// Client fetches expected configuration payloads from the external
// configuration service (GET /configurations/{kind}/{name}).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) FetchDesiredState(ctx context.Context, kind, name string) (*DesiredState, error) {
	endpoint := fmt.Sprintf("%s/configurations/%s/%s", c.baseURL, url.PathEscape(kind), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSourceUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrSourceUnavailable, endpoint, resp.StatusCode)
	}

	var desired DesiredState
	if err := json.NewDecoder(resp.Body).Decode(&desired); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}
	return &desired, nil
}
