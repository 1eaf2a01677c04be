// Package reminder drives the watchdog run: finding due approvals,
// building and dispatching reminders, and advancing each document's
// reminder cadence.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

// RowStore is the summary-row persistence consumed by the run. Satisfied
// by storage.SummaryStore.
type RowStore interface {
	QueryByReminderWindow(ctx context.Context, now time.Time, lookbackDays int) ([]approval.SummaryRow, error)
	GetByKey(ctx context.Context, partition, row string) (*approval.SummaryRow, error)
	Replace(ctx context.Context, row *approval.SummaryRow) error
}

// BlobWriter persists the post-update details projection. Satisfied by
// storage.BlobStore.
type BlobWriter interface {
	SaveJSON(ctx context.Context, key string, v interface{}) error
}

// Data mediates all reminder-run reads and writes against the row store
// and the blob projection.
type Data struct {
	rows  RowStore
	blobs BlobWriter
	log   *zap.Logger
}

func NewData(rows RowStore, blobs BlobWriter, log *zap.Logger) *Data {
	return &Data{rows: rows, blobs: blobs, log: log.Named("reminderdata")}
}

// GetApprovalsNeedingReminders returns the rows whose NextReminderTime
// falls inside the lookback window and that none of the disqualifying
// flags exclude.
func (d *Data) GetApprovalsNeedingReminders(ctx context.Context, now time.Time, lookbackDays int) ([]approval.SummaryRow, error) {
	rows, err := d.rows.QueryByReminderWindow(ctx, now, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("querying reminder window: %w", err)
	}
	eligible := rows[:0]
	for _, r := range rows {
		if r.ReminderEligible() {
			eligible = append(eligible, r)
		}
	}
	return eligible, nil
}

// UpdateReminderInfo advances a row's reminder bookkeeping: the row-level
// NextReminderTime, the reminder section of the embedded summary JSON,
// and the details projection blob. The write is a compensating
// read-modify-write retried once, so a conflicting writer costs one extra
// round trip instead of a lost update. A row deleted since the scan is
// treated as resolved, not as an error.
func (d *Data) UpdateReminderInfo(ctx context.Context, row *approval.SummaryRow, next, sentAt time.Time) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		fresh, err := d.rows.GetByKey(ctx, row.PartitionKey, row.RowKey)
		if err != nil {
			lastErr = err
			continue
		}
		if fresh == nil {
			d.log.Info("row gone before reminder update, treating as resolved",
				zap.String("partitionKey", row.PartitionKey), zap.String("rowKey", row.RowKey))
			return nil
		}

		patched, err := patchReminderJSON(fresh.SummaryJSON, next, sentAt)
		if err != nil {
			return fmt.Errorf("patching summary json for %s/%s: %w", row.PartitionKey, row.RowKey, err)
		}
		fresh.SummaryJSON = patched
		if next.IsZero() {
			fresh.NextReminderTime = nil
		} else {
			n := next
			fresh.NextReminderTime = &n
		}

		if err := d.rows.Replace(ctx, fresh); err != nil {
			lastErr = err
			continue
		}

		// The projection mirrors what approvals clients read; a failed
		// write here leaves the row authoritative and is retried by the
		// next run.
		if err := d.blobs.SaveJSON(ctx, detailsKey(fresh), []approval.SummaryRow{*fresh}); err != nil {
			d.log.Warn("details projection write failed",
				zap.String("partitionKey", fresh.PartitionKey),
				zap.String("rowKey", fresh.RowKey), zap.Error(err))
		}
		return nil
	}
	return fmt.Errorf("updating reminder info for %s/%s: %w", row.PartitionKey, row.RowKey, lastErr)
}

func detailsKey(row *approval.SummaryRow) string {
	return fmt.Sprintf("reminders/%s/%s.json", row.PartitionKey, row.RowKey)
}

// patchReminderJSON rewrites the reminder section of the embedded summary
// JSON, leaving every other field as decoded.
func patchReminderJSON(summaryJSON string, next, sentAt time.Time) (string, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(summaryJSON), &doc); err != nil {
		return "", err
	}
	nd, ok := doc["NotificationDetail"].(map[string]interface{})
	if !ok {
		nd = make(map[string]interface{})
		doc["NotificationDetail"] = nd
	}
	rem, ok := nd["Reminder"].(map[string]interface{})
	if !ok {
		rem = make(map[string]interface{})
		nd["Reminder"] = rem
	}
	rem["LastReminderSentTime"] = sentAt.UTC().Format(time.RFC3339)
	if next.IsZero() {
		delete(rem, "NextReminderTime")
	} else {
		rem["NextReminderTime"] = next.UTC().Format(time.RFC3339)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
