// Package approval holds the domain types shared by the watchdog pipeline:
// pending-approval summary rows, tenant configuration, notification metadata
// and the approver chain.
package approval

import (
	"encoding/json"
	"fmt"
	"time"
)

// SummaryRow is one pending approval for one current approver. The partition
// key scopes the document, the row key discriminates the approver. Rows are
// created by the intake pipeline and mutated here only to advance
// NextReminderTime.
type SummaryRow struct {
	PartitionKey          string     `dynamodbav:"PK" json:"partition_key"`
	RowKey                string     `dynamodbav:"SK" json:"row_key"`
	DocumentNumber        string     `dynamodbav:"DocumentNumber" json:"document_number"`
	Application           string     `dynamodbav:"Application" json:"application"`
	Approver              string     `dynamodbav:"Approver" json:"approver"`
	SummaryJSON           string     `dynamodbav:"SummaryJson" json:"summary_json"`
	NextReminderTime      *time.Time `dynamodbav:"NextReminderTime,omitempty" json:"next_reminder_time,omitempty"`
	Xcv                   string     `dynamodbav:"Xcv" json:"xcv"`
	Tcv                   string     `dynamodbav:"Tcv" json:"tcv"`
	IsOutOfSyncChallenged bool       `dynamodbav:"IsOutOfSyncChallenged" json:"is_out_of_sync_challenged"`
	LobPending            bool       `dynamodbav:"LobPending" json:"lob_pending"`
	IsOfflineApproval     bool       `dynamodbav:"IsOfflineApproval" json:"is_offline_approval"`
}

// ReminderEligible reports whether the row itself qualifies for a watchdog
// reminder. The time-window check lives in the store query; this covers the
// three disqualifying flags.
func (r *SummaryRow) ReminderEligible() bool {
	return !r.IsOutOfSyncChallenged && !r.LobPending && !r.IsOfflineApproval
}

// ApprovalIdentifier identifies the business document behind a summary row.
type ApprovalIdentifier struct {
	DocumentNumber        string `json:"DocumentNumber"`
	DisplayDocumentNumber string `json:"DisplayDocumentNumber"`
	FiscalYear            string `json:"FiscalYear,omitempty"`
}

// ReminderSettings carries the reminder cadence embedded in the summary JSON.
// Fixed ReminderDates win over Frequency when both are present.
type ReminderSettings struct {
	ReminderDates    []time.Time `json:"ReminderDates,omitempty"`
	Frequency        int         `json:"Frequency,omitempty"` // days
	Expiration       time.Time   `json:"Expiration,omitempty"`
	ReminderTemplate string      `json:"ReminderTemplate,omitempty"`
}

// NotificationDetail is the notification section of a summary row's embedded
// JSON: recipient overrides, the template key and the reminder cadence.
type NotificationDetail struct {
	To          string            `json:"To"`
	Cc          string            `json:"Cc,omitempty"`
	Bcc         string            `json:"Bcc,omitempty"`
	TemplateKey string            `json:"TemplateKey,omitempty"`
	Reminder    *ReminderSettings `json:"Reminder,omitempty"`
}

// summaryEnvelope is the subset of the summary JSON the pipeline reads
// directly; everything else flows through the placeholder flattener untyped.
type summaryEnvelope struct {
	ApprovalIdentifier *ApprovalIdentifier `json:"ApprovalIdentifier"`
	NotificationDetail *NotificationDetail `json:"NotificationDetail"`
}

// ParseNotificationDetail extracts the NotificationDetail object from a
// row's summary JSON.
func ParseNotificationDetail(summaryJSON string) (*NotificationDetail, error) {
	var env summaryEnvelope
	if err := json.Unmarshal([]byte(summaryJSON), &env); err != nil {
		return nil, fmt.Errorf("parsing summary json: %w", err)
	}
	if env.NotificationDetail == nil {
		return nil, fmt.Errorf("summary json has no NotificationDetail")
	}
	return env.NotificationDetail, nil
}

// ParseApprovalIdentifier extracts the ApprovalIdentifier object from a
// row's summary JSON. Returns a zero identifier when the section is absent.
func ParseApprovalIdentifier(summaryJSON string) (ApprovalIdentifier, error) {
	var env summaryEnvelope
	if err := json.Unmarshal([]byte(summaryJSON), &env); err != nil {
		return ApprovalIdentifier{}, fmt.Errorf("parsing summary json: %w", err)
	}
	if env.ApprovalIdentifier == nil {
		return ApprovalIdentifier{}, nil
	}
	return *env.ApprovalIdentifier, nil
}

// TenantInfo is the per-tenant configuration read by the watchdog. One
// TenantInfo is referenced by many summary rows via AppName; the watchdog
// never writes it.
type TenantInfo struct {
	PK                     string `dynamodbav:"PK" json:"-"`
	SK                     string `dynamodbav:"SK" json:"-"`
	TenantID               int    `dynamodbav:"TenantId" json:"tenant_id"`
	AppName                string `dynamodbav:"AppName" json:"app_name"`
	ToolName               string `dynamodbav:"ToolName" json:"tool_name"`
	BusinessProcessName    string `dynamodbav:"BusinessProcessName" json:"business_process_name"`
	ActionableEmailEnabled bool   `dynamodbav:"ActionableEmailEnabled" json:"actionable_email_enabled"`
	TenantDetailURL        string `dynamodbav:"TenantDetailUrl" json:"tenant_detail_url"`
	DocumentNumberPrefix   string `dynamodbav:"DocumentNumberPrefix" json:"document_number_prefix"`
	IsDigestEmailEnabled   bool   `dynamodbav:"IsDigestEmailEnabled" json:"is_digest_email_enabled"`
	TemplateFamily         string `dynamodbav:"TemplateFamily" json:"template_family"`
	AttachmentSizeLimitMB  int    `dynamodbav:"AttachmentSizeLimitMB" json:"attachment_size_limit_mb"`
}

// Family returns the template family used to compose template row keys,
// falling back to AppName when no explicit family is configured.
func (t *TenantInfo) Family() string {
	if t.TemplateFamily != "" {
		return t.TemplateFamily
	}
	return t.AppName
}

// EmailTemplate is one tenant email template row. RowKey follows the
// "{family}|{action}" convention, e.g. "ContosoWithAction|Reminder".
type EmailTemplate struct {
	PK              string `dynamodbav:"PK" json:"-"`
	RowKey          string `dynamodbav:"SK" json:"row_key"`
	TemplateID      string `dynamodbav:"TemplateId" json:"template_id"`
	TemplateContent string `dynamodbav:"TemplateContent" json:"template_content"`
}

// ChainEntry is one step of a document's approver chain, in chain order as
// returned by the history provider.
type ChainEntry struct {
	Alias         string         `json:"Alias"`
	Name          string         `json:"Name,omitempty"`
	Action        string         `json:"Action,omitempty"`
	ActionDate    *time.Time     `json:"ActionDate,omitempty"`
	DelegateOf    string         `json:"DelegateOf,omitempty"`
	Justification string         `json:"Justification,omitempty"`
	Notes         string         `json:"Notes,omitempty"`
	Type          ChainEntryType `json:"Type"`
}

// ChainEntryType distinguishes past actions from the current and future
// approvers in a chain.
type ChainEntryType string

const (
	ChainPast    ChainEntryType = "Past"
	ChainCurrent ChainEntryType = "Current"
	ChainFuture  ChainEntryType = "Future"
)

// Attachment is one document attachment referenced by approval details.
// Content is populated only after a successful download.
type Attachment struct {
	ID      string `json:"ID"`
	Name    string `json:"Name"`
	URL     string `json:"Url,omitempty"`
	Content []byte `json:"-"`
}

// ApprovalDetails is the full approval-request payload fetched for
// actionable emails. A non-empty Message means the tenant could not supply
// details; NotificationAllowed=false means details exist but the tenant has
// not finished staging them.
type ApprovalDetails struct {
	Message             string                     `json:"Message,omitempty"`
	NotificationAllowed bool                       `json:"NotificationAllowed"`
	Attachments         []Attachment               `json:"Attachments,omitempty"`
	Fields              map[string]json.RawMessage `json:"Fields,omitempty"`
}
