package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msapprovals/watchdog/internal/reminder"
)

func TestRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out := &reminder.RunOutcome{
		RunID:          "run-1",
		StartedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:       90 * time.Second,
		Fetched:        10,
		Candidates:     8,
		Deduplicated:   2,
		Sent:           7,
		ActionableSent: 4,
		NormalSent:     3,
		Failures:       1,
	}

	mock.ExpectExec("INSERT INTO watchdog_runs").
		WithArgs("run-1", out.StartedAt, int64(90000), 10, 8, 2, 0, 7, 4, 3, 1, 0, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewStore(db).Record(context.Background(), out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"run_id", "started_at", "duration_ms", "fetched", "candidates",
		"deduplicated", "skipped_digest", "sent", "actionable_sent",
		"normal_sent", "failures", "invalid_data", "cap_reached",
	}).AddRow("run-2", started, int64(5000), 3, 3, 0, 0, 3, 0, 3, 0, 0, false)

	mock.ExpectQuery("SELECT (.+) FROM watchdog_runs").
		WithArgs(5).
		WillReturnRows(rows)

	got, err := NewStore(db).RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Equal(t, 5*time.Second, got[0].Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}
