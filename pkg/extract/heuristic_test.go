package extract

import (
	"context"
	"testing"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
)

const invoiceText = `Meridian Court Reporting
Invoice No: MCR-2025-118
Remit to: Meridian Court Reporting LLC

Deposition transcript, R. Alvarez, 42 pages.
Total due: $1,250.00
Due date: April 15, 2025
`

func TestHeuristicExtractInvoice(t *testing.T) {
	h := NewHeuristicExtractor()
	got, err := h.Extract(context.Background(), invoiceText, billing.DocTypeUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !got.HasAmount || got.TotalAmount != 1250 {
		t.Errorf("amount = %v (has=%v), want 1250", got.TotalAmount, got.HasAmount)
	}
	if got.InvoiceNumber != "MCR-2025-118" {
		t.Errorf("invoice number = %q", got.InvoiceNumber)
	}
	if got.Vendor != "Meridian Court Reporting LLC" {
		t.Errorf("vendor = %q", got.Vendor)
	}
	if got.DueDate == nil {
		t.Fatal("due date missing")
	}
	want := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	if !got.DueDate.Equal(want) {
		t.Errorf("due date = %v, want %v", got.DueDate, want)
	}
	if got.DocumentType != billing.DocTypeVendorInvoice {
		t.Errorf("document type = %s, want vendor_invoice", got.DocumentType)
	}
	if got.Confidence <= 0 {
		t.Error("confidence should be positive for a full extraction")
	}
	if !got.BillingSignal() {
		t.Error("an invoice with an amount is a billing signal")
	}
}

func TestHeuristicExtractDeterministic(t *testing.T) {
	h := NewHeuristicExtractor()
	first, _ := h.Extract(context.Background(), invoiceText, billing.DocTypeUnknown)
	second, _ := h.Extract(context.Background(), invoiceText, billing.DocTypeUnknown)
	if first.TotalAmount != second.TotalAmount || first.Confidence != second.Confidence ||
		first.InvoiceNumber != second.InvoiceNumber || first.Vendor != second.Vendor {
		t.Error("same text must yield the same extraction")
	}
}

func TestHeuristicExtractEmptyAndPlainText(t *testing.T) {
	h := NewHeuristicExtractor()

	got, err := h.Extract(context.Background(), "", billing.DocTypeUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got.HasAmount || got.Confidence != 0 {
		t.Errorf("empty text should yield an empty extraction, got %+v", got)
	}

	got, err = h.Extract(context.Background(), "Lunch on Tuesday?", billing.DocTypeUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got.HasAmount {
		t.Error("no amount should be found in small talk")
	}
	if got.BillingSignal() {
		t.Error("small talk is not a billing signal")
	}
}

func TestHeuristicExtractBareAmounts(t *testing.T) {
	h := NewHeuristicExtractor()
	got, _ := h.Extract(context.Background(), "Filing fee was $450.00 plus $32.50 service charge.", billing.DocTypeUnknown)
	if !got.HasAmount || got.TotalAmount != 450 {
		t.Errorf("amount = %v, want the largest bare figure 450", got.TotalAmount)
	}
}

func TestClassifyDocument(t *testing.T) {
	tests := []struct {
		name string
		text string
		hint billing.DocumentType
		want billing.DocumentType
	}{
		{"hint wins", "invoice for legal services", billing.DocTypeReceipt, billing.DocTypeReceipt},
		{"legal invoice", "Invoice for legal services rendered", billing.DocTypeUnknown, billing.DocTypeLegalInvoice},
		{"vendor invoice", "Invoice INV-9. Remit to Acme.", billing.DocTypeUnknown, billing.DocTypeVendorInvoice},
		{"receipt", "Receipt for your payment", billing.DocTypeUnknown, billing.DocTypeReceipt},
		{"court filing", "Before the court: motion to compel", billing.DocTypeUnknown, billing.DocTypeCourtFiling},
		{"contract", "This agreement between the parties", billing.DocTypeUnknown, billing.DocTypeContract},
		{"correspondence", "Dear Ms. Doe,", billing.DocTypeUnknown, billing.DocTypeCorrespondence},
		{"unknown", "quarterly metrics attached", billing.DocTypeUnknown, billing.DocTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDocument(tt.text, tt.hint); got != tt.want {
				t.Errorf("ClassifyDocument = %s, want %s", got, tt.want)
			}
		})
	}
}
