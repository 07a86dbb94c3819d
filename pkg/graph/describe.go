package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/trestle-legal/docket/pkg/billing"
)

// Default suggested durations in hours when the source carries no
// duration of its own. Attorneys adjust these on review.
const (
	emailReviewHours    = 0.2
	documentReviewHours = 0.5
	minimumCallHours    = 0.1
)

// describeEvent builds the draft line-item description. Deterministic
// for a given (record, extraction) pair so replays amend nothing.
func describeEvent(record billing.Record, extraction billing.Extraction) string {
	var b strings.Builder

	switch record.Kind {
	case billing.KindEmail:
		b.WriteString("Email")
		if record.Email != nil && record.Email.Subject != "" {
			fmt.Fprintf(&b, ": %s", record.Email.Subject)
		}
	case billing.KindPhoneCall:
		b.WriteString("Phone call")
		if record.PhoneCall != nil {
			if n := len(record.PhoneCall.Participants); n > 0 {
				fmt.Fprintf(&b, " with %d participant(s)", n)
			}
			if record.PhoneCall.DurationSecs > 0 {
				fmt.Fprintf(&b, " (%d min)", (record.PhoneCall.DurationSecs+59)/60)
			}
		}
	case billing.KindDocument:
		b.WriteString("Document review")
		if record.Document != nil && record.Document.Filename != "" {
			fmt.Fprintf(&b, ": %s", record.Document.Filename)
		}
	}

	var details []string
	if extraction.Vendor != "" {
		details = append(details, extraction.Vendor)
	}
	if extraction.InvoiceNumber != "" {
		details = append(details, "invoice "+extraction.InvoiceNumber)
	}
	if extraction.HasAmount && extraction.TotalAmount > 0 {
		details = append(details, fmt.Sprintf("$%.2f", extraction.TotalAmount))
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(details, ", "))
	}

	if b.Len() == 0 {
		return "Billable activity"
	}
	return b.String()
}

// suggestDuration derives the draft duration in hours. Calls use their
// recorded length rounded up to a tenth of an hour; emails and
// documents fall back to flat review defaults.
func suggestDuration(record billing.Record) float64 {
	if record.Kind == billing.KindPhoneCall && record.PhoneCall != nil && record.PhoneCall.DurationSecs > 0 {
		hours := float64(record.PhoneCall.DurationSecs) / 3600
		rounded := math.Ceil(hours*10) / 10
		if rounded < minimumCallHours {
			return minimumCallHours
		}
		return rounded
	}
	if record.Kind == billing.KindDocument {
		return documentReviewHours
	}
	return emailReviewHours
}
