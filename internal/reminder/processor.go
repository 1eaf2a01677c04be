package reminder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
	"github.com/msapprovals/watchdog/internal/logging"
	"github.com/msapprovals/watchdog/internal/notify"
)

// ErrRunInProgress rejects a run request while another run holds the run
// lock.
var ErrRunInProgress = errors.New("a reminder run is already in progress")

// DataAccess is the reminder persistence surface. Satisfied by Data.
type DataAccess interface {
	GetApprovalsNeedingReminders(ctx context.Context, now time.Time, lookbackDays int) ([]approval.SummaryRow, error)
	UpdateReminderInfo(ctx context.Context, row *approval.SummaryRow, next, sentAt time.Time) error
}

// TenantSource resolves an application name to its tenant configuration,
// nil when unknown. Satisfied by tenant.Provider.
type TenantSource interface {
	Resolve(ctx context.Context, appName string) (*approval.TenantInfo, error)
}

// BodyBuilder composes one notification. Satisfied by notify.Builder.
type BodyBuilder interface {
	CreateEmailBody(ctx context.Context, row *approval.SummaryRow, detail *approval.NotificationDetail, tenant *approval.TenantInfo, emailType notify.EmailType) (*notify.Item, error)
}

// RunOutcome summarizes one watchdog pass for the run log and metrics.
type RunOutcome struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Fetched        int           `json:"fetched"`
	Candidates     int           `json:"candidates"`
	Deduplicated   int           `json:"deduplicated"`
	SkippedDigest  int           `json:"skipped_digest"`
	Sent           int           `json:"sent"`
	ActionableSent int           `json:"actionable_sent"`
	NormalSent     int           `json:"normal_sent"`
	Failures       int           `json:"failures"`
	InvalidData    int           `json:"invalid_data"`
	CapReached     bool          `json:"cap_reached"`
}

// Processor orchestrates one reminder run end to end.
type Processor struct {
	data         DataAccess
	tenants      TenantSource
	builder      BodyBuilder
	sink         notify.Sink
	pacer        Pacer
	lookbackDays int
	batchSize    int
	maxFailure   int
	log          *zap.Logger
}

func NewProcessor(data DataAccess, tenants TenantSource, builder BodyBuilder, sink notify.Sink, pacer Pacer, lookbackDays, batchSize, maxFailure int, log *zap.Logger) *Processor {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxFailure <= 0 {
		maxFailure = 25
	}
	return &Processor{
		data:         data,
		tenants:      tenants,
		builder:      builder,
		sink:         sink,
		pacer:        pacer,
		lookbackDays: lookbackDays,
		batchSize:    batchSize,
		maxFailure:   maxFailure,
		log:          log.Named("processor"),
	}
}

// SendReminders runs one watchdog pass: fetch the due rows, collapse
// duplicates, build and send one notification per candidate, then advance
// the reminder cadence for the candidate and every row it deduplicated.
// Per-candidate errors are counted and skipped; the run aborts early only
// when the failure cap is reached or the context dies.
func (p *Processor) SendReminders(ctx context.Context, now time.Time) (*RunOutcome, error) {
	started := time.Now()
	out := &RunOutcome{RunID: uuid.NewString(), StartedAt: now}
	defer func() { out.Duration = time.Since(started) }()

	rows, err := p.data.GetApprovalsNeedingReminders(ctx, now, p.lookbackDays)
	if err != nil {
		return out, err
	}
	out.Fetched = len(rows)

	// One notification per (document, routed recipients). Multiple rows for
	// the same document share the recipient list when several approvers sit
	// at one level; first row wins. Rows whose summary JSON will not parse
	// never collapse, they fail individually inside the loop.
	var candidates []candidate
	seen := make(map[string]struct{}, len(rows))
	siblings := make(map[string][]approval.SummaryRow, len(rows))
	for i := range rows {
		r := &rows[i]
		docKey := strings.ToLower(r.DocumentNumber)
		siblings[docKey] = append(siblings[docKey], *r)

		detail, parseErr := approval.ParseNotificationDetail(r.SummaryJSON)
		key := docKey + "|" + strings.ToLower(r.RowKey)
		if parseErr == nil {
			key = docKey + "|" + strings.ToLower(detail.To)
		}
		if _, ok := seen[key]; ok {
			out.Deduplicated++
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, candidate{row: r, detail: detail, parseErr: parseErr})
	}
	out.Candidates = len(candidates)

	sinceLastPause := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if out.Failures >= p.maxFailure {
			out.CapReached = true
			p.log.Error("failure cap reached, abandoning remainder of run",
				zap.String("runId", out.RunID),
				zap.Int("maxFailure", p.maxFailure),
				zap.Int("remaining", len(candidates)-i))
			break
		}

		c := candidates[i]
		row := c.row
		clog := logging.WithCandidate(p.log, row.DocumentNumber, row.Application, row.Xcv, row.Tcv)

		ten, err := p.tenants.Resolve(ctx, row.Application)
		if err != nil {
			out.Failures++
			clog.Warn("tenant lookup failed", zap.Error(err))
			continue
		}
		if ten != nil && ten.IsDigestEmailEnabled {
			out.SkippedDigest++
			continue
		}

		if c.parseErr != nil {
			out.Failures++
			out.InvalidData++
			clog.Warn("unparseable summary json", zap.Error(c.parseErr))
			continue
		}

		emailType := notify.NormalEmail
		if ten != nil && ten.ActionableEmailEnabled {
			emailType = notify.ActionableEmail
		}

		item, err := p.builder.CreateEmailBody(ctx, row, c.detail, ten, emailType)
		if err != nil {
			out.Failures++
			if errors.Is(err, notify.ErrInvalidReminderData) {
				out.InvalidData++
			}
			clog.Warn("building reminder failed", zap.Error(err))
			continue
		}
		// The templated recipient list is discarded at dispatch: reminders
		// address the row's current approver.
		item.To = row.Approver

		if err := p.sink.Send(ctx, item); err != nil {
			out.Failures++
			clog.Warn("sending reminder failed", zap.Error(err))
			continue
		}

		out.Sent++
		if item.EmailType == notify.ActionableEmail {
			out.ActionableSent++
		} else {
			out.NormalSent++
		}

		// Every eligible row of the document advances, including rows for
		// other approvers the dedup step did not collapse.
		next := approval.NextReminderTime(c.detail.Reminder, now)
		updateFailed := false
		for _, sib := range siblings[strings.ToLower(row.DocumentNumber)] {
			s := sib
			if err := p.data.UpdateReminderInfo(ctx, &s, next, now); err != nil {
				updateFailed = true
				clog.Warn("reminder bookkeeping failed", zap.String("rowKey", s.RowKey), zap.Error(err))
			}
		}
		// A candidate counts once toward the cap no matter how many of its
		// sibling rows failed to advance.
		if updateFailed {
			out.Failures++
		}

		sinceLastPause++
		if sinceLastPause >= p.batchSize {
			sinceLastPause = 0
			if err := p.pacer.Pause(ctx); err != nil {
				return out, err
			}
		}
	}

	p.log.Info("reminder run complete",
		zap.String("runId", out.RunID),
		zap.Int("fetched", out.Fetched),
		zap.Int("candidates", out.Candidates),
		zap.Int("deduplicated", out.Deduplicated),
		zap.Int("skippedDigest", out.SkippedDigest),
		zap.Int("sent", out.Sent),
		zap.Int("actionable", out.ActionableSent),
		zap.Int("normal", out.NormalSent),
		zap.Int("failures", out.Failures),
		zap.Bool("capReached", out.CapReached),
		zap.Duration("duration", out.Duration))
	return out, nil
}

// candidate is one deduplicated row with its parsed notification detail.
// parseErr is deferred to the dispatch loop so bad rows count against the
// failure cap like any other candidate failure.
type candidate struct {
	row      *approval.SummaryRow
	detail   *approval.NotificationDetail
	parseErr error
}
