// Package details fetches the full approval-request payload used by
// actionable emails: tenant details, line-of-business backfill, attachments
// and submitter images. Each call can fail independently; the email builder
// maps failures onto its template fallback ladder.
package details

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

// BlobDownloader is the blob-store contract the helper consumes for
// attachment content.
type BlobDownloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Helper is the details collaborator client.
type Helper struct {
	http              *retryablehttp.Client
	blobs             BlobDownloader
	baseURL           string
	attachmentsPrefix string
	log               *zap.Logger
}

// NewHelper creates a details helper.
func NewHelper(baseURL string, blobs BlobDownloader, attachmentsPrefix string, timeout time.Duration, retryMax int, log *zap.Logger) *Helper {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retryMax
	rc.Logger = nil

	return &Helper{
		http:              rc,
		blobs:             blobs,
		baseURL:           baseURL,
		attachmentsPrefix: attachmentsPrefix,
		log:               log,
	}
}

// GetDetails fetches the approval-request details for a document.
func (h *Helper) GetDetails(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv string) (*approval.ApprovalDetails, error) {
	if tenant == nil {
		return nil, fmt.Errorf("details fetch requires tenant configuration")
	}
	u := fmt.Sprintf("%s/api/details/%d/%s", h.baseURL, tenant.TenantID, url.PathEscape(displayDocNumber))
	return h.getDetails(ctx, u, xcv)
}

// FetchMissingFromLOB asks the line-of-business system to stage the details
// it has not pushed yet, then returns the refreshed payload.
func (h *Helper) FetchMissingFromLOB(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv string) (*approval.ApprovalDetails, error) {
	if tenant == nil {
		return nil, fmt.Errorf("LOB fetch requires tenant configuration")
	}
	u := fmt.Sprintf("%s/api/details/%d/%s?refresh=lob", h.baseURL, tenant.TenantID, url.PathEscape(displayDocNumber))
	return h.getDetails(ctx, u, xcv)
}

func (h *Helper) getDetails(ctx context.Context, u, xcv string) (*approval.ApprovalDetails, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Correlation-Id", xcv)

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching approval details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("details service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var det approval.ApprovalDetails
	if err := json.Unmarshal(body, &det); err != nil {
		return nil, fmt.Errorf("parsing approval details: %w", err)
	}
	return &det, nil
}

// GetAttachments downloads the content for every attachment referenced by
// the details. Any single failed download fails the whole call; the caller
// decides how to degrade.
func (h *Helper) GetAttachments(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber string, det *approval.ApprovalDetails) ([]approval.Attachment, error) {
	if det == nil || len(det.Attachments) == 0 {
		return nil, nil
	}

	out := make([]approval.Attachment, 0, len(det.Attachments))
	for _, att := range det.Attachments {
		key := fmt.Sprintf("%s/%d/%s/%s", h.attachmentsPrefix, tenant.TenantID, displayDocNumber, att.Name)
		content, err := h.blobs.Download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("downloading attachment %s: %w", att.Name, err)
		}
		att.Content = content
		out = append(out, att)
	}
	return out, nil
}

// GetUserImage returns the base64-encoded profile image for an alias, or an
// empty string when no image is available.
func (h *Helper) GetUserImage(ctx context.Context, alias string) (string, error) {
	u := fmt.Sprintf("%s/api/users/%s/photo", h.baseURL, url.PathEscape(alias))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching user image for %s: %w", alias, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user image service returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DynamicHTMLDetails renders the secondary detail block substituted into
// actionable templates: one definition row per detail field plus the
// approver-chain fragment.
func (h *Helper) DynamicHTMLDetails(det *approval.ApprovalDetails, chainHTML string) string {
	if det == nil {
		return chainHTML
	}

	names := make([]string, 0, len(det.Fields))
	for name := range det.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(`<table class="detail-fields">`)
	for _, name := range names {
		val := strings.Trim(string(det.Fields[name]), `"`)
		sb.WriteString("<tr><td>")
		sb.WriteString(name)
		sb.WriteString("</td><td>")
		sb.WriteString(val)
		sb.WriteString("</td></tr>")
	}
	sb.WriteString("</table>")
	sb.WriteString(chainHTML)
	return sb.String()
}
