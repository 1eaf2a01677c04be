// Package intake accepts approval summary payloads, validates them
// against the summary schema and converts them into stored rows.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

const summarySchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["DocumentNumber", "Application", "Approvers", "Summary"],
	"properties": {
		"DocumentNumber": {"type": "string", "minLength": 1},
		"Application": {"type": "string", "minLength": 1},
		"Xcv": {"type": "string"},
		"Tcv": {"type": "string"},
		"Approvers": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"Summary": {
			"type": "object",
			"required": ["ApprovalIdentifier", "NotificationDetail"],
			"properties": {
				"ApprovalIdentifier": {
					"type": "object",
					"required": ["DocumentNumber"],
					"properties": {
						"DocumentNumber": {"type": "string", "minLength": 1},
						"DisplayDocumentNumber": {"type": "string"},
						"FiscalYear": {"type": "string"}
					}
				},
				"NotificationDetail": {
					"type": "object",
					"required": ["To"],
					"properties": {
						"To": {"type": "string"},
						"Cc": {"type": "string"},
						"Bcc": {"type": "string"},
						"Reminder": {
							"type": "object",
							"properties": {
								"Frequency": {"type": "integer", "minimum": 1},
								"ReminderDates": {"type": "array", "items": {"type": "string", "format": "date-time"}},
								"Expiration": {"type": "string", "format": "date-time"}
							}
						}
					}
				}
			}
		}
	}
}`

// Payload is one inbound approval summary: the document, its pending
// approvers, and the summary body each row embeds.
type Payload struct {
	DocumentNumber string          `json:"DocumentNumber"`
	Application    string          `json:"Application"`
	Xcv            string          `json:"Xcv,omitempty"`
	Tcv            string          `json:"Tcv,omitempty"`
	Approvers      []string        `json:"Approvers"`
	Summary        json.RawMessage `json:"Summary"`
}

// RowWriter persists converted rows. Satisfied by storage.SummaryStore.
type RowWriter interface {
	Replace(ctx context.Context, row *approval.SummaryRow) error
}

// ValidationError carries the schema violations for one rejected payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload failed validation: %s", strings.Join(e.Problems, "; "))
}

// Intake validates and stores inbound summaries.
type Intake struct {
	schema *gojsonschema.Schema
	rows   RowWriter
	log    *zap.Logger
}

func New(rows RowWriter, log *zap.Logger) (*Intake, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(summarySchema))
	if err != nil {
		return nil, fmt.Errorf("compiling summary schema: %w", err)
	}
	return &Intake{schema: schema, rows: rows, log: log.Named("intake")}, nil
}

// Validate checks one raw payload against the summary schema.
func (i *Intake) Validate(raw []byte) (*Payload, error) {
	result, err := i.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating payload: %w", err)
	}
	if !result.Valid() {
		ve := &ValidationError{}
		for _, p := range result.Errors() {
			ve.Problems = append(ve.Problems, p.String())
		}
		return nil, ve
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return &p, nil
}

// Accept validates a payload and writes one summary row per approver.
// The first reminder falls due according to the embedded cadence.
func (i *Intake) Accept(ctx context.Context, raw []byte, now time.Time) (int, error) {
	p, err := i.Validate(raw)
	if err != nil {
		return 0, err
	}

	detail, err := approval.ParseNotificationDetail(string(p.Summary))
	if err != nil {
		return 0, err
	}
	next := approval.NextReminderTime(detail.Reminder, now)

	stored := 0
	for _, approver := range p.Approvers {
		row := &approval.SummaryRow{
			PartitionKey:   "DOC#" + strings.ToLower(p.DocumentNumber),
			RowKey:         "APPROVER#" + strings.ToLower(approver),
			DocumentNumber: p.DocumentNumber,
			Application:    p.Application,
			Approver:       approver,
			SummaryJSON:    string(p.Summary),
			Xcv:            p.Xcv,
			Tcv:            p.Tcv,
		}
		if !next.IsZero() {
			n := next
			row.NextReminderTime = &n
		}
		if err := i.rows.Replace(ctx, row); err != nil {
			return stored, fmt.Errorf("storing row for %s: %w", approver, err)
		}
		stored++
	}
	i.log.Info("payload accepted",
		zap.String("documentNumber", p.DocumentNumber),
		zap.String("application", p.Application),
		zap.Int("rows", stored))
	return stored, nil
}
