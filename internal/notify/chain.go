package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/msapprovals/watchdog/internal/approval"
)

// NameResolver turns a directory alias into a display name. Resolution
// failures degrade to the alias, never to an error.
type NameResolver interface {
	GetUserName(ctx context.Context, alias string) string
}

// chainFact is one row of the adaptive-card chain rendering.
type chainFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// RenderApproverChain renders the chain twice: as an HTML list for body
// templates and as adaptive-card facts for actionable emails. Entry order
// is preserved exactly as the history provider returned it.
func RenderApproverChain(ctx context.Context, entries []approval.ChainEntry, names NameResolver) (string, string) {
	if len(entries) == 0 {
		return "", "[]"
	}

	var b strings.Builder
	facts := make([]chainFact, 0, len(entries))
	b.WriteString(`<ul class="approver-chain">`)
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = names.GetUserName(ctx, e.Alias)
		}
		name = html.EscapeString(name)
		if e.DelegateOf != "" {
			name = fmt.Sprintf("%s on behalf of %s", name, html.EscapeString(e.DelegateOf))
		}

		var line, status string
		switch e.Type {
		case approval.ChainCurrent:
			line = fmt.Sprintf("%s &mdash; pending action", name)
			status = "Pending"
		case approval.ChainFuture:
			line = fmt.Sprintf("%s &mdash; up next", name)
			status = "Up next"
		default:
			verb := e.Action
			if verb == "" {
				verb = "Approved"
			}
			line = fmt.Sprintf("%s %s", name, html.EscapeString(verb))
			status = verb
			if e.ActionDate != nil {
				when := e.ActionDate.Format("01/02/2006")
				line = fmt.Sprintf("%s on %s", line, when)
				status = fmt.Sprintf("%s %s", status, when)
			}
		}

		b.WriteString("<li>")
		b.WriteString(line)
		if e.Justification != "" {
			b.WriteString(fmt.Sprintf(`<div class="justification">%s</div>`, html.EscapeString(e.Justification)))
		}
		if e.Notes != "" {
			b.WriteString(fmt.Sprintf(`<div class="notes">%s</div>`, html.EscapeString(e.Notes)))
		}
		b.WriteString("</li>")

		facts = append(facts, chainFact{Title: name, Value: status})
	}
	b.WriteString("</ul>")

	adaptive, err := json.Marshal(facts)
	if err != nil {
		return b.String(), "[]"
	}
	return b.String(), string(adaptive)
}
