// Package history fetches the approver chain for a document from the
// approval-history service.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/msapprovals/watchdog/internal/approval"
)

// Client queries the history service. Chain order is whatever the service
// returns; callers must not re-sort.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
}

// NewClient creates a history client.
func NewClient(baseURL string, timeout time.Duration, retryMax int) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retryMax
	rc.Logger = nil

	return &Client{http: rc, baseURL: baseURL}
}

// GetApproverChain returns the ordered chain (past actions, current and
// future approvers) for a document.
func (c *Client) GetApproverChain(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv, tcv string) ([]approval.ChainEntry, error) {
	if tenant == nil {
		return nil, fmt.Errorf("approver chain requires tenant configuration")
	}

	u := fmt.Sprintf("%s/api/history/%d/%s", c.baseURL, tenant.TenantID, url.PathEscape(displayDocNumber))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Correlation-Id", xcv)
	req.Header.Set("X-Transaction-Id", tcv)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching approver chain for %s: %w", displayDocNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history service returned status %d for %s", resp.StatusCode, displayDocNumber)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var chain []approval.ChainEntry
	if err := json.Unmarshal(body, &chain); err != nil {
		return nil, fmt.Errorf("parsing approver chain: %w", err)
	}
	return chain, nil
}
