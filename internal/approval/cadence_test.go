package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextReminderTime_NilSettings(t *testing.T) {
	next := NextReminderTime(nil, time.Now())
	assert.True(t, next.IsZero())
}

func TestNextReminderTime_Frequency(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	rem := &ReminderSettings{Frequency: 2}
	next := NextReminderTime(rem, now)
	assert.Equal(t, now.AddDate(0, 0, 2), next)

	// Missing frequency falls back to the default cadence.
	next = NextReminderTime(&ReminderSettings{}, now)
	assert.Equal(t, now.AddDate(0, 0, defaultFrequencyDays), next)
}

func TestNextReminderTime_FixedDates(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	near := now.AddDate(0, 0, 1)
	far := now.AddDate(0, 0, 7)

	rem := &ReminderSettings{ReminderDates: []time.Time{far, past, near}}
	assert.Equal(t, near, NextReminderTime(rem, now))

	// All dates in the past: nothing further is due.
	rem = &ReminderSettings{ReminderDates: []time.Time{past}}
	assert.True(t, NextReminderTime(rem, now).IsZero())
}

func TestNextReminderTime_Expiration(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Already expired.
	rem := &ReminderSettings{Frequency: 1, Expiration: now.AddDate(0, 0, -1)}
	assert.True(t, NextReminderTime(rem, now).IsZero())

	// Next boundary would land past expiration.
	rem = &ReminderSettings{Frequency: 10, Expiration: now.AddDate(0, 0, 5)}
	assert.True(t, NextReminderTime(rem, now).IsZero())

	// Fixed date past expiration.
	rem = &ReminderSettings{
		ReminderDates: []time.Time{now.AddDate(0, 0, 6)},
		Expiration:    now.AddDate(0, 0, 5),
	}
	assert.True(t, NextReminderTime(rem, now).IsZero())
}

func TestParseNotificationDetail(t *testing.T) {
	raw := `{
		"ApprovalIdentifier": {"DocumentNumber": "PO123", "DisplayDocumentNumber": "PO-123", "FiscalYear": "2026"},
		"NotificationDetail": {"To": "alice@contoso.com", "Cc": "bob@contoso.com", "TemplateKey": "Reminder", "Reminder": {"Frequency": 3}}
	}`

	detail, err := ParseNotificationDetail(raw)
	assert.NoError(t, err)
	assert.Equal(t, "alice@contoso.com", detail.To)
	assert.NotNil(t, detail.Reminder)
	assert.Equal(t, 3, detail.Reminder.Frequency)

	id, err := ParseApprovalIdentifier(raw)
	assert.NoError(t, err)
	assert.Equal(t, "PO-123", id.DisplayDocumentNumber)

	_, err = ParseNotificationDetail(`{"ApprovalIdentifier": {}}`)
	assert.Error(t, err)

	_, err = ParseNotificationDetail(`not json`)
	assert.Error(t, err)
}

func TestSummaryRowReminderEligible(t *testing.T) {
	row := SummaryRow{}
	assert.True(t, row.ReminderEligible())

	for _, mutate := range []func(*SummaryRow){
		func(r *SummaryRow) { r.IsOutOfSyncChallenged = true },
		func(r *SummaryRow) { r.LobPending = true },
		func(r *SummaryRow) { r.IsOfflineApproval = true },
	} {
		r := SummaryRow{}
		mutate(&r)
		assert.False(t, r.ReminderEligible())
	}
}

func TestTenantInfoFamily(t *testing.T) {
	ti := TenantInfo{AppName: "Contoso"}
	assert.Equal(t, "Contoso", ti.Family())

	ti.TemplateFamily = "ContosoExpense"
	assert.Equal(t, "ContosoExpense", ti.Family())
}
