package approval

import "time"

// defaultFrequencyDays is used when a reminder carries neither fixed dates
// nor a frequency.
const defaultFrequencyDays = 3

// NextReminderTime computes the next reminder boundary for a document given
// its reminder settings. Fixed reminder dates take precedence: the earliest
// date strictly after now wins. Otherwise the frequency (in days) is added
// to now. A zero return means no further reminder is due (settings missing,
// expired, or no remaining fixed dates).
func NextReminderTime(rem *ReminderSettings, now time.Time) time.Time {
	if rem == nil {
		return time.Time{}
	}
	if !rem.Expiration.IsZero() && now.After(rem.Expiration) {
		return time.Time{}
	}

	if len(rem.ReminderDates) > 0 {
		var next time.Time
		for _, d := range rem.ReminderDates {
			if d.After(now) && (next.IsZero() || d.Before(next)) {
				next = d
			}
		}
		if next.IsZero() {
			return time.Time{}
		}
		if !rem.Expiration.IsZero() && next.After(rem.Expiration) {
			return time.Time{}
		}
		return next
	}

	freq := rem.Frequency
	if freq <= 0 {
		freq = defaultFrequencyDays
	}
	next := now.AddDate(0, 0, freq)
	if !rem.Expiration.IsZero() && next.After(rem.Expiration) {
		return time.Time{}
	}
	return next
}
