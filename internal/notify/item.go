// Package notify builds and delivers watchdog reminder notifications: the
// template fallback ladder, placeholder substitution, approver-chain
// rendering and the SES delivery sink.
package notify

import (
	"errors"

	"github.com/msapprovals/watchdog/internal/approval"
)

// EmailType is the notification class. Actionable emails carry inline
// approval controls and full details; normal emails link to the web app.
type EmailType int

const (
	NormalEmail EmailType = iota
	ActionableEmail
)

func (t EmailType) String() string {
	if t == ActionableEmail {
		return "actionable"
	}
	return "normal"
}

// ErrInvalidReminderData marks a candidate whose summary JSON carries no
// reminder settings. Fatal for that candidate only.
var ErrInvalidReminderData = errors.New("notification detail has no reminder settings")

// ErrTemplateNotFound is returned when no template row matches any
// candidate key. On the final normal-email attempt it propagates to the
// per-candidate boundary.
var ErrTemplateNotFound = errors.New("no matching email template")

// Telemetry carries the cross-system correlation ids through dispatch.
type Telemetry struct {
	Xcv string `json:"xcv"`
	Tcv string `json:"tcv"`
}

// Item is one fully composed outgoing notification. It is immutable once
// handed to a Sink.
type Item struct {
	To           string
	Cc           string
	Bcc          string
	Subject      string
	Body         string
	TemplateID   string
	TemplateData map[string]string
	Attachments  []approval.Attachment
	Telemetry    Telemetry
	EmailType    EmailType
}
