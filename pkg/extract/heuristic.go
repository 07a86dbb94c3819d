package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"

	"github.com/araddon/dateparse"
)

var (
	labeledAmountRe = regexp.MustCompile(`(?i)(?:total due|amount due|balance due|total amount|total|amount)\s*:?\s*[$€£]?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	bareAmountRe    = regexp.MustCompile(`[$€£]\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	dueDateRe       = regexp.MustCompile(`(?i)(?:due date|due on|payable by|payment due)\s*:?\s*([A-Za-z0-9][A-Za-z0-9 ,./-]{3,40})`)
	invoiceNumRe    = regexp.MustCompile(`(?i)invoice\s*(?:no\.?|number|num\.?|#)?\s*:?\s*([A-Z0-9][A-Z0-9/-]{2,24})`)
	vendorLineRe    = regexp.MustCompile(`(?i)(?:vendor|billed by|remit to|payable to)\s*:?\s*(.+)`)
)

// HeuristicExtractor is the deterministic, rule-based extractor. Same
// text in, same extraction out, which is what the golden tests assert.
type HeuristicExtractor struct{}

// NewHeuristicExtractor returns the rule-based extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract applies the pattern rules to text. It never returns an error:
// text that matches nothing yields an empty extraction with confidence 0.
func (h *HeuristicExtractor) Extract(
	_ context.Context,
	text string,
	hint billing.DocumentType,
) (billing.Extraction, error) {
	out := billing.Extraction{}

	text = strings.TrimSpace(text)
	if text == "" {
		return out, nil
	}

	out.DocumentType = ClassifyDocument(text, hint)

	if amount, ok := extractAmount(text); ok {
		out.TotalAmount = amount
		out.HasAmount = true
	}
	if due, ok := extractDueDate(text); ok {
		out.DueDate = &due
	}
	if num, ok := extractInvoiceNumber(text); ok {
		out.InvoiceNumber = num
	}
	if vendor, ok := extractVendor(text); ok {
		out.Vendor = vendor
	}

	out.Confidence = scoreConfidence(out)
	return out, nil
}

// extractAmount prefers a labeled total; otherwise it falls back to the
// largest currency-marked figure in the text.
func extractAmount(text string) (float64, bool) {
	if m := labeledAmountRe.FindStringSubmatch(text); m != nil {
		if v, err := parseMoney(m[1]); err == nil {
			return v, true
		}
	}

	best := 0.0
	found := false
	for _, m := range bareAmountRe.FindAllStringSubmatch(text, -1) {
		v, err := parseMoney(m[1])
		if err != nil {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

func parseMoney(raw string) (float64, error) {
	raw = strings.ReplaceAll(raw, ",", "")
	return strconv.ParseFloat(raw, 64)
}

func extractDueDate(text string) (time.Time, bool) {
	m := dueDateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	candidate := strings.TrimSpace(m[1])
	// Trim trailing sentence fragments the loose capture may have taken.
	if idx := strings.IndexAny(candidate, ".\n"); idx > 0 {
		candidate = strings.TrimSpace(candidate[:idx])
	}

	t, err := dateparse.ParseIn(candidate, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func extractInvoiceNumber(text string) (string, bool) {
	m := invoiceNumRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	num := strings.TrimRight(m[1], "/-")
	// A bare word like "for" can slip through the loose class; require a digit.
	if !strings.ContainsAny(num, "0123456789") {
		return "", false
	}
	return num, true
}

func extractVendor(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		m := vendorLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		vendor := strings.TrimSpace(m[1])
		vendor = strings.Trim(vendor, " .,;:")
		if vendor != "" {
			return vendor, true
		}
	}
	return "", false
}

// scoreConfidence derives a deterministic confidence from which fields
// were found. Weights favor the amount, the strongest billing signal.
func scoreConfidence(e billing.Extraction) float64 {
	score := 0.0
	if e.HasAmount {
		score += 0.4
	}
	if e.DueDate != nil {
		score += 0.2
	}
	if e.InvoiceNumber != "" {
		score += 0.2
	}
	if e.Vendor != "" {
		score += 0.1
	}
	if e.DocumentType != billing.DocTypeUnknown {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
