package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

type memRowStore struct {
	rows        map[string]approval.SummaryRow
	queryErr    error
	getErr      error
	replaceErrs []error
	replaced    []approval.SummaryRow
	gets        int
}

func key(pk, sk string) string { return pk + "/" + sk }

func (m *memRowStore) QueryByReminderWindow(context.Context, time.Time, int) ([]approval.SummaryRow, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := make([]approval.SummaryRow, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRowStore) GetByKey(_ context.Context, pk, sk string) (*approval.SummaryRow, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.rows[key(pk, sk)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRowStore) Replace(_ context.Context, row *approval.SummaryRow) error {
	if len(m.replaceErrs) > 0 {
		err := m.replaceErrs[0]
		m.replaceErrs = m.replaceErrs[1:]
		if err != nil {
			return err
		}
	}
	m.rows[key(row.PartitionKey, row.RowKey)] = *row
	m.replaced = append(m.replaced, *row)
	return nil
}

type memBlobs struct {
	saved map[string]interface{}
	err   error
}

func (m *memBlobs) SaveJSON(_ context.Context, k string, v interface{}) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]interface{})
	}
	m.saved[k] = v
	return nil
}

func testRow() approval.SummaryRow {
	return approval.SummaryRow{
		PartitionKey:   "DOC#inv-9",
		RowKey:         "APPROVER#jordanl",
		DocumentNumber: "INV-9",
		Approver:       "jordanl",
		SummaryJSON:    `{"NotificationDetail":{"To":"x@y.com","Reminder":{"Frequency":3}}}`,
	}
}

func TestGetApprovalsNeedingRemindersFiltersFlags(t *testing.T) {
	eligible := testRow()
	challenged := testRow()
	challenged.RowKey = "APPROVER#other"
	challenged.IsOutOfSyncChallenged = true
	offline := testRow()
	offline.RowKey = "APPROVER#third"
	offline.IsOfflineApproval = true

	store := &memRowStore{rows: map[string]approval.SummaryRow{
		key(eligible.PartitionKey, eligible.RowKey):     eligible,
		key(challenged.PartitionKey, challenged.RowKey): challenged,
		key(offline.PartitionKey, offline.RowKey):       offline,
	}}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	rows, err := d.GetApprovalsNeedingReminders(context.Background(), time.Now(), 30)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "APPROVER#jordanl", rows[0].RowKey)
}

func TestUpdateReminderInfoPatchesRowAndJSON(t *testing.T) {
	row := testRow()
	store := &memRowStore{rows: map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row}}
	blobs := &memBlobs{}
	d := NewData(store, blobs, zap.NewNop())

	sentAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next := sentAt.AddDate(0, 0, 3)
	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, next, sentAt))

	updated := store.rows[key(row.PartitionKey, row.RowKey)]
	require.NotNil(t, updated.NextReminderTime)
	assert.Equal(t, next, *updated.NextReminderTime)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(updated.SummaryJSON), &doc))
	rem := doc["NotificationDetail"].(map[string]interface{})["Reminder"].(map[string]interface{})
	assert.Equal(t, "2025-06-04T12:00:00Z", rem["NextReminderTime"])
	assert.Equal(t, "2025-06-01T12:00:00Z", rem["LastReminderSentTime"])

	// details projection is a single-entry array
	proj, ok := blobs.saved["reminders/DOC#inv-9/APPROVER#jordanl.json"].([]approval.SummaryRow)
	require.True(t, ok)
	require.Len(t, proj, 1)
}

func TestUpdateReminderInfoRepeatedSameTargetIsIdempotent(t *testing.T) {
	row := testRow()
	store := &memRowStore{rows: map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row}}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	sentAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next := sentAt.AddDate(0, 0, 3)
	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, next, sentAt))
	afterFirst := store.rows[key(row.PartitionKey, row.RowKey)]

	again := testRow()
	require.NoError(t, d.UpdateReminderInfo(context.Background(), &again, next, sentAt))

	afterSecond := store.rows[key(row.PartitionKey, row.RowKey)]
	assert.Equal(t, afterFirst.SummaryJSON, afterSecond.SummaryJSON)
	require.NotNil(t, afterSecond.NextReminderTime)
	assert.Equal(t, next, *afterSecond.NextReminderTime)
	assert.Len(t, store.replaced, 2)
}

func TestUpdateReminderInfoExpiredClearsNextReminder(t *testing.T) {
	row := testRow()
	store := &memRowStore{rows: map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row}}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	sentAt := time.Now().UTC()
	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, time.Time{}, sentAt))

	updated := store.rows[key(row.PartitionKey, row.RowKey)]
	assert.Nil(t, updated.NextReminderTime)
	assert.NotContains(t, updated.SummaryJSON, "NextReminderTime")
}

func TestUpdateReminderInfoRetriesOnce(t *testing.T) {
	row := testRow()
	store := &memRowStore{
		rows:        map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row},
		replaceErrs: []error{errors.New("conditional check failed")},
	}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, time.Now().AddDate(0, 0, 3), time.Now()))
	assert.Equal(t, 2, store.gets, "retry should re-read the row")
	assert.Len(t, store.replaced, 1)
}

func TestUpdateReminderInfoGivesUpAfterRetry(t *testing.T) {
	row := testRow()
	store := &memRowStore{
		rows:        map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row},
		replaceErrs: []error{errors.New("throttled"), errors.New("throttled")},
	}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	err := d.UpdateReminderInfo(context.Background(), &row, time.Now().AddDate(0, 0, 3), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestUpdateReminderInfoRowGoneIsResolved(t *testing.T) {
	row := testRow()
	store := &memRowStore{rows: map[string]approval.SummaryRow{}}
	d := NewData(store, &memBlobs{}, zap.NewNop())

	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, time.Now(), time.Now()))
	assert.Empty(t, store.replaced)
}

func TestUpdateReminderInfoBlobFailureIsNonFatal(t *testing.T) {
	row := testRow()
	store := &memRowStore{rows: map[string]approval.SummaryRow{key(row.PartitionKey, row.RowKey): row}}
	d := NewData(store, &memBlobs{err: errors.New("s3 down")}, zap.NewNop())

	require.NoError(t, d.UpdateReminderInfo(context.Background(), &row, time.Now().AddDate(0, 0, 3), time.Now()))
	assert.Len(t, store.replaced, 1)
}
