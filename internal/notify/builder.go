package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

// TemplateSource loads the template rows for one tenant.
type TemplateSource interface {
	GetTemplates(ctx context.Context, tenantID int) ([]approval.EmailTemplate, error)
}

// DetailsProvider is the approval-details collaborator consumed by the
// builder. Satisfied by details.Helper.
type DetailsProvider interface {
	GetDetails(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv string) (*approval.ApprovalDetails, error)
	FetchMissingFromLOB(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv string) (*approval.ApprovalDetails, error)
	GetAttachments(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber string, det *approval.ApprovalDetails) ([]approval.Attachment, error)
	GetUserImage(ctx context.Context, alias string) (string, error)
	DynamicHTMLDetails(det *approval.ApprovalDetails, chainHTML string) string
}

// HistoryProvider fetches a document's approver chain.
type HistoryProvider interface {
	GetApproverChain(ctx context.Context, tenant *approval.TenantInfo, displayDocNumber, xcv, tcv string) ([]approval.ChainEntry, error)
}

// Builder composes reminder notifications. It never sends them.
type Builder struct {
	templates         TemplateSource
	details           DetailsProvider
	history           HistoryProvider
	names             NameResolver
	baseURL           string
	attachmentLimitMB int
	log               *zap.Logger
}

func NewBuilder(templates TemplateSource, details DetailsProvider, history HistoryProvider, names NameResolver, baseURL string, attachmentLimitMB int, log *zap.Logger) *Builder {
	if attachmentLimitMB <= 0 {
		attachmentLimitMB = 10
	}
	return &Builder{
		templates:         templates,
		details:           details,
		history:           history,
		names:             names,
		baseURL:           baseURL,
		attachmentLimitMB: attachmentLimitMB,
		log:               log.Named("builder"),
	}
}

// CreateEmailBody composes one outgoing notification for a summary row.
// Actionable requests walk a degradation ladder: missing or refused details
// drop to a normal email, attachment problems drop to a details-only or
// normal template, and a failed actionable prepare retries once as a plain
// normal reminder. ErrTemplateNotFound escapes only from that final normal
// attempt. The returned item's EmailType reflects what was actually built.
func (b *Builder) CreateEmailBody(ctx context.Context, row *approval.SummaryRow, detail *approval.NotificationDetail, tenant *approval.TenantInfo, emailType EmailType) (*Item, error) {
	if detail == nil || detail.Reminder == nil {
		return nil, ErrInvalidReminderData
	}
	if tenant == nil {
		return nil, fmt.Errorf("no tenant configuration for application %q", row.Application)
	}

	id, err := approval.ParseApprovalIdentifier(row.SummaryJSON)
	if err != nil {
		return nil, err
	}
	doc := id.DisplayDocumentNumber
	if doc == "" {
		doc = row.DocumentNumber
	}

	finalType := emailType
	variant := variantBase
	var det *approval.ApprovalDetails
	var attachments []approval.Attachment

	if emailType == ActionableEmail && tenant.ActionableEmailEnabled {
		variant = variantWithAction
		det, err = b.details.GetDetails(ctx, tenant, doc, row.Xcv)
		switch {
		case err != nil:
			b.log.Warn("details fetch failed, sending normal reminder",
				zap.String("documentNumber", row.DocumentNumber), zap.Error(err))
			finalType, variant, det = NormalEmail, variantBase, nil
		case det == nil || det.Message != "":
			msg := ""
			if det != nil {
				msg = det.Message
			}
			b.log.Warn("tenant returned no usable details, sending normal reminder",
				zap.String("documentNumber", row.DocumentNumber), zap.String("message", msg))
			finalType, variant, det = NormalEmail, variantBase, nil
		case !det.NotificationAllowed:
			lob, lobErr := b.details.FetchMissingFromLOB(ctx, tenant, doc, row.Xcv)
			if lobErr != nil || lob == nil || !lob.NotificationAllowed {
				b.log.Warn("line-of-business refresh did not release details, sending normal reminder",
					zap.String("documentNumber", row.DocumentNumber), zap.Error(lobErr))
				finalType, variant, det = NormalEmail, variantBase, nil
			} else {
				det = lob
			}
		}

		if finalType == ActionableEmail && det != nil && len(det.Attachments) > 0 {
			atts, attErr := b.details.GetAttachments(ctx, tenant, doc, det)
			if attErr != nil {
				b.log.Warn("attachment download failed, sending details-only email",
					zap.String("documentNumber", row.DocumentNumber), zap.Error(attErr))
				variant = variantWithDetails
			} else if exceedsLimit(atts, b.attachmentLimitMB) {
				b.log.Warn("attachments exceed size limit, sending normal reminder",
					zap.String("documentNumber", row.DocumentNumber),
					zap.Int("limitMB", b.attachmentLimitMB))
				finalType, variant, det = NormalEmail, variantBase, nil
			} else {
				attachments = atts
			}
		}
	} else {
		finalType = NormalEmail
	}

	item, err := b.prepareEmail(ctx, row, detail, tenant, id, doc, finalType, variant, det, attachments)
	if err != nil && finalType == ActionableEmail {
		b.log.Warn("actionable preparation failed, retrying as normal reminder",
			zap.String("documentNumber", row.DocumentNumber), zap.Error(err))
		item, err = b.prepareEmail(ctx, row, detail, tenant, id, doc, NormalEmail, variantBase, nil, nil)
	}
	return item, err
}

// prepareEmail resolves a template for one ladder position, maps the
// placeholder values and renders the body.
func (b *Builder) prepareEmail(ctx context.Context, row *approval.SummaryRow, detail *approval.NotificationDetail, tenant *approval.TenantInfo, id approval.ApprovalIdentifier, doc string, emailType EmailType, variant templateVariant, det *approval.ApprovalDetails, attachments []approval.Attachment) (*Item, error) {
	templates, err := b.templates.GetTemplates(ctx, tenant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading templates for tenant %d: %w", tenant.TenantID, err)
	}
	tpl, err := resolveTemplate(templates, candidateKeys(tenant.Family(), emailType, variant))
	if err != nil {
		return nil, err
	}

	values, err := b.mapSummaryData(ctx, row, tenant, id, doc, emailType, det)
	if err != nil {
		return nil, err
	}

	body := Render(tpl.TemplateContent, values)
	return &Item{
		To:           detail.To,
		Cc:           detail.Cc,
		Bcc:          detail.Bcc,
		Subject:      extractSubject(body),
		Body:         body,
		TemplateID:   tpl.TemplateID,
		TemplateData: values,
		Attachments:  attachments,
		Telemetry:    Telemetry{Xcv: row.Xcv, Tcv: row.Tcv},
		EmailType:    emailType,
	}, nil
}

// mapSummaryData flattens the summary JSON and layers on the computed
// values: approver display name, detail page link, tenant names, the
// rendered approver chain and, for actionable emails, the detail fields
// and the dynamic detail block.
func (b *Builder) mapSummaryData(ctx context.Context, row *approval.SummaryRow, tenant *approval.TenantInfo, id approval.ApprovalIdentifier, doc string, emailType EmailType, det *approval.ApprovalDetails) (map[string]string, error) {
	values, err := FlattenSummary(row.SummaryJSON)
	if err != nil {
		return nil, err
	}

	if values["Approver.Name"] == "" {
		values["Approver.Name"] = b.names.GetUserName(ctx, row.Approver)
	}
	values["Approver.Alias"] = row.Approver
	values["DetailPageUrl"] = b.detailPageURL(tenant, id, doc)
	values["ToolName"] = tenant.ToolName
	values["TenantName"] = tenant.AppName
	values["BusinessProcessName"] = tenant.BusinessProcessName
	values["Xcv"] = row.Xcv
	values["Tcv"] = row.Tcv

	if v, ok := values["UnitValue"]; ok {
		values["UnitValue"] = formatUnitValue(v)
	}
	if v, ok := values["SubmittedDate"]; ok {
		values["SubmittedDate"] = formatSubmittedDate(v)
	}

	chain, err := b.history.GetApproverChain(ctx, tenant, doc, row.Xcv, row.Tcv)
	if err != nil {
		return nil, fmt.Errorf("fetching approver chain for %s: %w", doc, err)
	}
	chainHTML, adaptive := RenderApproverChain(ctx, chain, b.names)
	values["ApproverChain"] = chainHTML
	values["ApproverChainAdaptive"] = adaptive

	if emailType == ActionableEmail && det != nil {
		for name, raw := range det.Fields {
			FlattenRaw("ActionDetails."+name, raw, values)
		}
		if alias := values["Submitter.Alias"]; alias != "" {
			img, imgErr := b.details.GetUserImage(ctx, alias)
			if imgErr != nil {
				return nil, fmt.Errorf("fetching submitter image for %s: %w", alias, imgErr)
			}
			values["Submitter.ImageBase64"] = img
		}
		values["ActionDetails.DetailTemplate"] = b.details.DynamicHTMLDetails(det, chainHTML)
	}
	return values, nil
}

// detailPageURL expands the tenant's detail URL template; tenants without
// one get the shared web app deep link.
func (b *Builder) detailPageURL(tenant *approval.TenantInfo, id approval.ApprovalIdentifier, doc string) string {
	if tenant.TenantDetailURL != "" {
		r := strings.NewReplacer(
			"{tenantId}", fmt.Sprintf("%d", tenant.TenantID),
			"{documentNumber}", doc,
			"{fiscalYear}", id.FiscalYear,
		)
		return r.Replace(tenant.TenantDetailURL)
	}
	return fmt.Sprintf("%s/detail/%d/%s", strings.TrimRight(b.baseURL, "/"), tenant.TenantID, doc)
}

func exceedsLimit(attachments []approval.Attachment, limitMB int) bool {
	var total int
	for _, a := range attachments {
		total += len(a.Content)
	}
	return total > limitMB*1024*1024
}
