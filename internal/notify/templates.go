package notify

import (
	"regexp"
	"strings"

	"github.com/msapprovals/watchdog/internal/approval"
)

// templateVariant tracks how far the actionable-content ladder got before
// template resolution. Each variant implies a row-key prefix suffix.
type templateVariant int

const (
	variantBase templateVariant = iota
	variantWithDetails
	variantWithAction
)

const (
	reminderAction        = "Reminder"
	defaultTemplateFamily = "Default"
)

// candidateKeys composes the ordered template row keys for one prepare
// attempt, most specific first. Resolution is first-match-wins over this
// list, so a tenant missing its WithAction row degrades to WithDetails and
// then to its base family without a separate round trip.
func candidateKeys(family string, emailType EmailType, variant templateVariant) []string {
	if emailType == ActionableEmail {
		switch variant {
		case variantWithAction:
			return []string{
				family + "WithAction|" + reminderAction,
				family + "WithDetails|" + reminderAction,
				family + "|" + reminderAction,
			}
		case variantWithDetails:
			return []string{
				family + "WithDetails|" + reminderAction,
				family + "|" + reminderAction,
			}
		}
	}
	return []string{
		family + "|" + reminderAction,
		defaultTemplateFamily + "|" + reminderAction,
	}
}

// resolveTemplate returns the first template whose row key matches a
// candidate, or ErrTemplateNotFound when none does.
func resolveTemplate(templates []approval.EmailTemplate, keys []string) (*approval.EmailTemplate, error) {
	for _, key := range keys {
		for i := range templates {
			if strings.EqualFold(templates[i].RowKey, key) {
				return &templates[i], nil
			}
		}
	}
	return nil, ErrTemplateNotFound
}

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// extractSubject pulls the email subject out of the rendered body's
// <title> element. Bodies without a title produce an empty subject.
func extractSubject(body string) string {
	m := titlePattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
