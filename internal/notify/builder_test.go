package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

const builderSummaryJSON = `{
	"ApprovalIdentifier": {"DocumentNumber": "DOC-1", "DisplayDocumentNumber": "INV-9"},
	"NotificationDetail": {"To": "approver@contoso.com", "Cc": "cc@contoso.com", "Reminder": {"Frequency": 3}},
	"UnitValue": 1500,
	"SubmittedDate": "2025-06-01",
	"Submitter": {"Alias": "chrisg"}
}`

type fakeTemplates struct {
	rows []approval.EmailTemplate
	err  error
}

func (f *fakeTemplates) GetTemplates(context.Context, int) ([]approval.EmailTemplate, error) {
	return f.rows, f.err
}

type fakeDetails struct {
	det    *approval.ApprovalDetails
	detErr error
	lob    *approval.ApprovalDetails
	lobErr error
	atts   []approval.Attachment
	attErr error
	img    string
	imgErr error
}

func (f *fakeDetails) GetDetails(context.Context, *approval.TenantInfo, string, string) (*approval.ApprovalDetails, error) {
	return f.det, f.detErr
}

func (f *fakeDetails) FetchMissingFromLOB(context.Context, *approval.TenantInfo, string, string) (*approval.ApprovalDetails, error) {
	return f.lob, f.lobErr
}

func (f *fakeDetails) GetAttachments(context.Context, *approval.TenantInfo, string, *approval.ApprovalDetails) ([]approval.Attachment, error) {
	return f.atts, f.attErr
}

func (f *fakeDetails) GetUserImage(context.Context, string) (string, error) {
	return f.img, f.imgErr
}

func (f *fakeDetails) DynamicHTMLDetails(*approval.ApprovalDetails, string) string {
	return "<table>#ActionDetails.Amount#</table>"
}

type fakeHistory struct {
	chain []approval.ChainEntry
	err   error
}

func (f *fakeHistory) GetApproverChain(context.Context, *approval.TenantInfo, string, string, string) ([]approval.ChainEntry, error) {
	return f.chain, f.err
}

func builderFixture(t *testing.T, templates []approval.EmailTemplate, det *fakeDetails) (*Builder, *approval.SummaryRow, *approval.NotificationDetail, *approval.TenantInfo) {
	t.Helper()
	row := &approval.SummaryRow{
		DocumentNumber: "DOC-1",
		Application:    "Contoso",
		Approver:       "jordanl",
		SummaryJSON:    builderSummaryJSON,
		Xcv:            "xcv-1",
		Tcv:            "tcv-1",
	}
	detail, err := approval.ParseNotificationDetail(builderSummaryJSON)
	require.NoError(t, err)
	tenant := &approval.TenantInfo{
		TenantID:               7,
		AppName:                "Contoso",
		ToolName:               "Contoso Payables",
		ActionableEmailEnabled: true,
		TemplateFamily:         "Contoso",
	}
	b := NewBuilder(
		&fakeTemplates{rows: templates},
		det,
		&fakeHistory{},
		staticNames{"jordanl": "Jordan Lee"},
		"https://approvals.example.com",
		1,
		zap.NewNop(),
	)
	return b, row, detail, tenant
}

func actionableDetails() *approval.ApprovalDetails {
	return &approval.ApprovalDetails{
		NotificationAllowed: true,
		Fields: map[string]json.RawMessage{
			"Amount": json.RawMessage(`1500`),
		},
	}
}

var templateSet = []approval.EmailTemplate{
	{RowKey: "ContosoWithAction|Reminder", TemplateID: "t-action",
		TemplateContent: `<html><head><title>Act on #ApprovalIdentifier.DisplayDocumentNumber#</title></head><body>#ActionDetails.DetailTemplate# total #UnitValue#</body></html>`},
	{RowKey: "ContosoWithDetails|Reminder", TemplateID: "t-details",
		TemplateContent: `<html><head><title>Details for #ApprovalIdentifier.DisplayDocumentNumber#</title></head><body>#ActionDetails.DetailTemplate#</body></html>`},
	{RowKey: "Contoso|Reminder", TemplateID: "t-normal",
		TemplateContent: `<html><head><title>Reminder #ApprovalIdentifier.DisplayDocumentNumber#</title></head><body>Hello #Approver.Name#, #UnitValue# due. #DetailPageUrl#</body></html>`},
}

func TestCreateEmailBodyActionable(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, templateSet, &fakeDetails{det: actionableDetails()})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)

	assert.Equal(t, ActionableEmail, item.EmailType)
	assert.Equal(t, "t-action", item.TemplateID)
	assert.Equal(t, "Act on INV-9", item.Subject)
	assert.Equal(t, "approver@contoso.com", item.To)
	assert.Equal(t, "cc@contoso.com", item.Cc)
	// detail block injected in pass one, its field token resolved in pass two
	assert.Contains(t, item.Body, "<table>1500</table>")
	assert.Contains(t, item.Body, "total 1,500.00")
	assert.Equal(t, "xcv-1", item.Telemetry.Xcv)
}

func TestCreateEmailBodyResolutionFallsThroughCandidates(t *testing.T) {
	// Only the base family row exists; an actionable build still resolves.
	b, row, detail, tenant := builderFixture(t, templateSet[2:], &fakeDetails{det: actionableDetails()})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, ActionableEmail, item.EmailType)
	assert.Equal(t, "t-normal", item.TemplateID)
	assert.Contains(t, item.Body, "Jordan Lee")
}

func TestCreateEmailBodyTenantMessageDowngrades(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, templateSet,
		&fakeDetails{det: &approval.ApprovalDetails{Message: "details unavailable"}})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, NormalEmail, item.EmailType)
	assert.Equal(t, "t-normal", item.TemplateID)
}

func TestCreateEmailBodyLOBRefreshReleasesDetails(t *testing.T) {
	held := actionableDetails()
	held.NotificationAllowed = false
	b, row, detail, tenant := builderFixture(t, templateSet,
		&fakeDetails{det: held, lob: actionableDetails()})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, ActionableEmail, item.EmailType)
	assert.Equal(t, "t-action", item.TemplateID)
}

func TestCreateEmailBodyAttachmentFailureSendsDetailsOnly(t *testing.T) {
	det := actionableDetails()
	det.Attachments = []approval.Attachment{{ID: "a1", Name: "invoice.pdf"}}
	b, row, detail, tenant := builderFixture(t, templateSet,
		&fakeDetails{det: det, attErr: errors.New("blob missing")})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, ActionableEmail, item.EmailType)
	assert.Equal(t, "t-details", item.TemplateID)
	assert.Empty(t, item.Attachments)
}

func TestCreateEmailBodyOversizeAttachmentsSendNormal(t *testing.T) {
	det := actionableDetails()
	det.Attachments = []approval.Attachment{{ID: "a1", Name: "invoice.pdf"}}
	// fixture limit is 1 MB
	big := []approval.Attachment{{ID: "a1", Name: "invoice.pdf", Content: make([]byte, 2<<20)}}
	b, row, detail, tenant := builderFixture(t, templateSet, &fakeDetails{det: det, atts: big})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, NormalEmail, item.EmailType)
	assert.Equal(t, "t-normal", item.TemplateID)
	assert.Empty(t, item.Attachments)
}

func TestCreateEmailBodyActionablePrepareRetriesAsNormal(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, templateSet,
		&fakeDetails{det: actionableDetails(), imgErr: errors.New("graph down")})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.NoError(t, err)
	assert.Equal(t, NormalEmail, item.EmailType)
	assert.Equal(t, "t-normal", item.TemplateID)
}

func TestCreateEmailBodyTemplateNotFound(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, nil, &fakeDetails{det: actionableDetails()})

	_, err := b.CreateEmailBody(context.Background(), row, detail, tenant, ActionableEmail)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestCreateEmailBodyValidation(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, templateSet, &fakeDetails{})

	_, err := b.CreateEmailBody(context.Background(), row, nil, tenant, NormalEmail)
	assert.ErrorIs(t, err, ErrInvalidReminderData)

	_, err = b.CreateEmailBody(context.Background(), row, &approval.NotificationDetail{To: "x"}, tenant, NormalEmail)
	assert.ErrorIs(t, err, ErrInvalidReminderData)

	_, err = b.CreateEmailBody(context.Background(), row, detail, nil, NormalEmail)
	assert.Error(t, err)
}

func TestCreateEmailBodyNormalSkipsDetailCalls(t *testing.T) {
	b, row, detail, tenant := builderFixture(t, templateSet,
		&fakeDetails{detErr: errors.New("should not be called")})

	item, err := b.CreateEmailBody(context.Background(), row, detail, tenant, NormalEmail)
	require.NoError(t, err)
	assert.Equal(t, NormalEmail, item.EmailType)
	assert.Contains(t, item.Body, "https://approvals.example.com/detail/7/INV-9")
}
