// Package names resolves directory aliases to display names.
package names

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client looks up display names over the name-resolution service. Lookups
// degrade to the raw alias on any failure; approver-chain rendering never
// blocks on directory availability.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	log     *zap.Logger
	cache   sync.Map // alias -> display name
}

// NewClient creates a name-resolution client.
func NewClient(baseURL string, timeout time.Duration, retryMax int, log *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retryMax
	rc.Logger = nil

	return &Client{http: rc, baseURL: baseURL, log: log}
}

// GetUserName returns the display name for an alias, or the alias itself
// when resolution fails.
func (c *Client) GetUserName(ctx context.Context, alias string) string {
	if alias == "" {
		return ""
	}
	if cached, ok := c.cache.Load(alias); ok {
		return cached.(string)
	}

	name, err := c.lookup(ctx, alias)
	if err != nil {
		c.log.Debug("name resolution failed", zap.String("alias", alias), zap.Error(err))
		return alias
	}

	c.cache.Store(alias, name)
	return name
}

func (c *Client) lookup(ctx context.Context, alias string) (string, error) {
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(alias))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var payload struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if payload.DisplayName == "" {
		return "", fmt.Errorf("empty display name for %s", alias)
	}
	return payload.DisplayName, nil
}
