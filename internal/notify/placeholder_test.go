package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteLeavesUnknownTokens(t *testing.T) {
	out := Substitute("Hello #Approver.Name#, re #Unknown.Token#", map[string]string{
		"Approver.Name": "Jordan Lee",
	})
	assert.Equal(t, "Hello Jordan Lee, re #Unknown.Token#", out)
}

func TestRenderResolvesNestedTokens(t *testing.T) {
	// The detail block is injected in pass one and its own tokens resolve
	// in pass two.
	values := map[string]string{
		"ActionDetails.DetailTemplate": "<td>#ActionDetails.Amount#</td>",
		"ActionDetails.Amount":         "42.00",
	}
	out := Render("#ActionDetails.DetailTemplate#", values)
	assert.Equal(t, "<td>42.00</td>", out)
}

func TestRenderBlanksOptionalTokenFamilies(t *testing.T) {
	out := Render("a#ActionDetails.Missing#b#AdditionalData.X.Y#c#ApproverNotes#d", nil)
	assert.Equal(t, "abcd", out)
}

func TestRenderKeepsOtherUnresolvedTokensVisible(t *testing.T) {
	out := Render("#DocumentNumber#", nil)
	assert.Equal(t, "#DocumentNumber#", out)
}

func TestFlattenSummary(t *testing.T) {
	values, err := FlattenSummary(`{
		"DocumentNumber": "INV-9",
		"UnitValue": 1234567.5,
		"Approved": true,
		"Submitter": {"Alias": "chrisg", "Name": null},
		"Tags": ["urgent", "q3"]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "INV-9", values["DocumentNumber"])
	assert.Equal(t, "1234567.5", values["UnitValue"])
	assert.Equal(t, "true", values["Approved"])
	assert.Equal(t, "chrisg", values["Submitter.Alias"])
	assert.Equal(t, "", values["Submitter.Name"])
	assert.Equal(t, "urgent", values["Tags.0"])
	assert.Equal(t, "q3", values["Tags.1"])
}

func TestFlattenSummaryBadJSON(t *testing.T) {
	_, err := FlattenSummary("{nope")
	require.Error(t, err)
}

func TestFormatUnitValue(t *testing.T) {
	assert.Equal(t, "1,234,567.50", formatUnitValue("1234567.5"))
	assert.Equal(t, "999.00", formatUnitValue("999"))
	assert.Equal(t, "-1,000.25", formatUnitValue("-1000.25"))
	assert.Equal(t, "2.00", formatUnitValue("1.999"))
	assert.Equal(t, "-0.50", formatUnitValue("-0.5"))
	assert.Equal(t, "0.00", formatUnitValue("-0.001"))
	assert.Equal(t, "n/a", formatUnitValue("n/a"))
}

func TestFormatSubmittedDate(t *testing.T) {
	assert.Equal(t, "03/09/25", formatSubmittedDate("2025-03-09T14:30:00Z"))
	assert.Equal(t, "03/09/25", formatSubmittedDate("2025-03-09"))
	assert.Equal(t, "not a date", formatSubmittedDate("not a date"))
}

func TestExtractSubject(t *testing.T) {
	assert.Equal(t, "Reminder: INV-9", extractSubject("<html><head><TITLE>\n Reminder: INV-9 </TITLE></head></html>"))
	assert.Equal(t, "", extractSubject("<html><body>no title</body></html>"))
}
