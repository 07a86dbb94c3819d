package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"
	"github.com/trestle-legal/docket/pkg/store/memory"
)

var mergeTime = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

func seedCase(t *testing.T, st *memory.Store, number string) {
	t.Helper()
	err := st.CreateCase(context.Background(), billing.Case{
		Number: number,
		Name:   "Test matter",
		Status: billing.CaseOpen,
	})
	if err != nil {
		t.Fatalf("CreateCase(%s) failed: %v", number, err)
	}
}

func invoiceEmail(key string) billing.Record {
	return billing.Record{
		NaturalKey: key,
		Kind:       billing.KindEmail,
		Timestamp:  mergeTime,
		Email: &billing.EmailPayload{
			MessageID: key,
			Subject:   "Invoice INV-2041 from Meridian Court Reporting",
			From:      "billing@meridiancr.com",
			To:        []string{"jdoe@trestle.legal"},
			CC:        []string{"paralegal@trestle.legal"},
		},
	}
}

func invoiceExtraction() billing.Extraction {
	return billing.Extraction{
		DocumentType:  billing.DocTypeVendorInvoice,
		TotalAmount:   1250.00,
		HasAmount:     true,
		Vendor:        "Meridian Court Reporting",
		InvoiceNumber: "INV-2041",
		Summary:       "Deposition transcript invoice",
		Confidence:    0.9,
	}
}

func inspect(t *testing.T, st *memory.Store, fn func(tx store.Tx)) {
	t.Helper()
	err := st.WithTx(context.Background(), func(_ context.Context, tx store.Tx) error {
		fn(tx)
		return nil
	})
	if err != nil {
		t.Fatalf("inspection tx failed: %v", err)
	}
}

func TestMergeCreatesEventOnce(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	first, err := m.Merge(context.Background(), invoiceEmail("msg-1"), &extraction, "2025-cv-0042")
	if err != nil {
		t.Fatalf("first merge failed: %v", err)
	}
	if !first.RecordCreated || !first.EventCreated || !first.CaseLinked {
		t.Fatalf("first merge = %+v, want record, event and case link created", first)
	}
	if first.EventID == "" {
		t.Fatal("first merge produced no event ID")
	}

	second, err := m.Merge(context.Background(), invoiceEmail("msg-1"), &extraction, "2025-CV-0042")
	if err != nil {
		t.Fatalf("replay merge failed: %v", err)
	}
	if second.RecordCreated || second.EventCreated {
		t.Fatalf("replay merge = %+v, want nothing created", second)
	}
	if second.EventAmended {
		t.Fatalf("identical replay amended the event")
	}
	if second.EventID != first.EventID {
		t.Fatalf("replay event ID = %s, want %s", second.EventID, first.EventID)
	}

	events, err := st.ListEvents(
		context.Background(),
		"2025-CV-0042",
		mergeTime.Add(-time.Hour), mergeTime.Add(time.Hour),
		nil,
	)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after replay, want 1", len(events))
	}
	ev := events[0]
	if ev.Status != billing.EventDraft {
		t.Errorf("event status = %s, want draft", ev.Status)
	}
	if ev.Amount != 1250.00 {
		t.Errorf("event amount = %v, want 1250.00", ev.Amount)
	}
	if ev.SourceType != billing.KindEmail {
		t.Errorf("event source type = %s, want email", ev.SourceType)
	}
}

func TestMergeUnknownCaseRollsBack(t *testing.T) {
	st := memory.New()
	m := NewMerger(st)

	extraction := invoiceExtraction()
	_, err := m.Merge(context.Background(), invoiceEmail("msg-unknown"), &extraction, "2099-CV-9999")
	var unknown *billing.UnknownCaseError
	if !errors.As(err, &unknown) {
		t.Fatalf("merge error = %v, want UnknownCaseError", err)
	}
	if unknown.CaseNumber != "2099-CV-9999" {
		t.Errorf("unknown case number = %s, want 2099-CV-9999", unknown.CaseNumber)
	}

	// Nothing survives the rollback, not even the record upsert.
	inspect(t, st, func(tx store.Tx) {
		rec, err := tx.GetRecord(context.Background(), "msg-unknown")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if rec != nil {
			t.Error("record survived an unknown-case rollback")
		}
		person, err := tx.GetPersonByEmail(context.Background(), "billing@meridiancr.com")
		if err != nil {
			t.Fatalf("GetPersonByEmail failed: %v", err)
		}
		if person != nil {
			t.Error("participant survived an unknown-case rollback")
		}
	})
}

func TestMergeWithoutCaseSkipsEvent(t *testing.T) {
	st := memory.New()
	m := NewMerger(st)

	extraction := invoiceExtraction()
	result, err := m.Merge(context.Background(), invoiceEmail("msg-nocase"), &extraction, "")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if !result.RecordCreated {
		t.Error("record was not created")
	}
	if result.CaseLinked || result.EventID != "" {
		t.Errorf("merge = %+v, want no case link and no event", result)
	}

	inspect(t, st, func(tx store.Tx) {
		rec, err := tx.GetRecord(context.Background(), "msg-nocase")
		if err != nil || rec == nil {
			t.Fatalf("GetRecord = (%v, %v), want stored record", rec, err)
		}
	})
}

func TestMergeImmutableAfterDecision(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	first, err := m.Merge(context.Background(), invoiceEmail("msg-imm"), &extraction, "2025-CV-0042")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if err := st.TransitionEvent(context.Background(), first.EventID, billing.EventApproved); err != nil {
		t.Fatalf("TransitionEvent failed: %v", err)
	}

	richer := invoiceExtraction()
	richer.TotalAmount = 9999
	richer.Confidence = 1.0
	replay, err := m.Merge(context.Background(), invoiceEmail("msg-imm"), &richer, "2025-CV-0042")
	if err != nil {
		t.Fatalf("replay after approval errored: %v", err)
	}
	if !replay.EventImmutable {
		t.Fatalf("replay = %+v, want EventImmutable", replay)
	}

	ev, err := st.GetEvent(context.Background(), first.EventID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if ev.Amount != 1250.00 || ev.Status != billing.EventApproved {
		t.Errorf("approved event changed: amount=%v status=%s", ev.Amount, ev.Status)
	}
}

func TestMergeConfidenceGatesAmendment(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	first, err := m.Merge(context.Background(), invoiceEmail("msg-conf"), &extraction, "2025-CV-0042")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	lower := invoiceExtraction()
	lower.TotalAmount = 10
	lower.Confidence = 0.4
	result, err := m.Merge(context.Background(), invoiceEmail("msg-conf"), &lower, "2025-CV-0042")
	if err != nil {
		t.Fatalf("low-confidence replay failed: %v", err)
	}
	if result.EventAmended {
		t.Error("low-confidence replay amended the draft")
	}
	ev, _ := st.GetEvent(context.Background(), first.EventID)
	if ev.Amount != 1250.00 {
		t.Errorf("amount after low-confidence replay = %v, want 1250.00", ev.Amount)
	}

	higher := invoiceExtraction()
	higher.TotalAmount = 1300
	higher.Confidence = 0.95
	result, err = m.Merge(context.Background(), invoiceEmail("msg-conf"), &higher, "2025-CV-0042")
	if err != nil {
		t.Fatalf("high-confidence replay failed: %v", err)
	}
	if !result.EventAmended {
		t.Error("high-confidence replay did not amend the draft")
	}
	ev, _ = st.GetEvent(context.Background(), first.EventID)
	if ev.Amount != 1300 || ev.Confidence != 0.95 {
		t.Errorf("amended event = amount %v confidence %v, want 1300 / 0.95", ev.Amount, ev.Confidence)
	}
}

func TestMergeDetectsForCaseMismatch(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	seedCase(t, st, "2025-CV-0099")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	first, err := m.Merge(context.Background(), invoiceEmail("msg-integrity"), &extraction, "2025-CV-0042")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// Corrupt the denormalized edge the way a buggy migration might.
	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.EnsureEdge(ctx, billing.Edge{
			SourceID: first.EventID,
			Type:     billing.EdgeForCase,
			TargetID: "2025-CV-0099",
		})
	})
	if err != nil {
		t.Fatalf("edge corruption setup failed: %v", err)
	}

	_, err = m.Merge(context.Background(), invoiceEmail("msg-integrity"), &extraction, "2025-CV-0042")
	var integrity *billing.DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("merge error = %v, want DataIntegrityError", err)
	}
	if integrity.EventID != first.EventID {
		t.Errorf("integrity error event = %s, want %s", integrity.EventID, first.EventID)
	}
	if integrity.ForCase != "2025-CV-0099" || integrity.RelatesTo != "2025-CV-0042" {
		t.Errorf("integrity error cases = (%s, %s)", integrity.ForCase, integrity.RelatesTo)
	}
}

func TestMergeParticipantEdges(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	if _, err := m.Merge(context.Background(), invoiceEmail("msg-edges"), &extraction, "2025-CV-0042"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	inspect(t, st, func(tx store.Tx) {
		sender, err := tx.GetPersonByEmail(context.Background(), "billing@meridiancr.com")
		if err != nil || sender == nil {
			t.Fatalf("sender lookup = (%v, %v), want person", sender, err)
		}
		edges, err := tx.EdgesFrom(context.Background(), sender.ID, billing.EdgeSent)
		if err != nil {
			t.Fatalf("EdgesFrom failed: %v", err)
		}
		if len(edges) != 1 || edges[0].TargetID != "msg-edges" {
			t.Errorf("sender SENT edges = %+v, want one to msg-edges", edges)
		}

		recipient, err := tx.GetPersonByEmail(context.Background(), "jdoe@trestle.legal")
		if err != nil || recipient == nil {
			t.Fatalf("recipient lookup = (%v, %v), want person", recipient, err)
		}
		edges, err = tx.EdgesFrom(context.Background(), recipient.ID, billing.EdgeTo)
		if err != nil {
			t.Fatalf("EdgesFrom failed: %v", err)
		}
		if len(edges) != 1 {
			t.Errorf("recipient TO edges = %+v, want one", edges)
		}
	})
}

func TestMergePhoneCallParticipants(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	record := billing.Record{
		NaturalKey: "call-77",
		Kind:       billing.KindPhoneCall,
		Timestamp:  mergeTime,
		PhoneCall: &billing.PhoneCallPayload{
			CallID:       "call-77",
			Participants: []string{"+1 (555) 010-2000", "+1 (555) 010-3000"},
			DurationSecs: 1500,
		},
	}
	extraction := billing.Extraction{HasAmount: true, TotalAmount: 75, Confidence: 0.8}

	result, err := m.Merge(context.Background(), record, &extraction, "2025-CV-0042")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	ev, err := st.GetEvent(context.Background(), result.EventID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	// 1500s = 25 min, rounded up to 0.5h.
	if ev.DurationHours != 0.5 {
		t.Errorf("call duration = %v hours, want 0.5", ev.DurationHours)
	}

	inspect(t, st, func(tx store.Tx) {
		p, err := tx.GetPersonByPhone(context.Background(), "+15550102000")
		if err != nil || p == nil {
			t.Fatalf("participant lookup = (%v, %v), want person", p, err)
		}
		edges, err := tx.EdgesFrom(context.Background(), p.ID, billing.EdgeParticipatedIn)
		if err != nil {
			t.Fatalf("EdgesFrom failed: %v", err)
		}
		if len(edges) != 1 || edges[0].TargetID != "call-77" {
			t.Errorf("PARTICIPATED_IN edges = %+v", edges)
		}
	})
}

func TestMergeVendorOrganization(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	if _, err := m.Merge(context.Background(), invoiceEmail("msg-vendor"), &extraction, "2025-CV-0042"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	check := func() {
		inspect(t, st, func(tx store.Tx) {
			sender, err := tx.GetPersonByEmail(context.Background(), "billing@meridiancr.com")
			if err != nil || sender == nil {
				t.Fatalf("sender lookup = (%v, %v), want person", sender, err)
			}
			hasVendorRole := false
			for _, r := range sender.Roles {
				if r == billing.RoleVendor {
					hasVendorRole = true
				}
			}
			if !hasVendorRole {
				t.Errorf("sender roles = %v, want vendor among them", sender.Roles)
			}
			edges, err := tx.EdgesFrom(context.Background(), sender.ID, billing.EdgeMemberOf)
			if err != nil {
				t.Fatalf("EdgesFrom failed: %v", err)
			}
			if len(edges) != 1 || edges[0].TargetID != "meridian court reporting" {
				t.Errorf("MEMBER_OF edges = %+v, want one to the normalized org name", edges)
			}
		})
	}
	check()

	// A replay with a noisier spelling of the same vendor must land on
	// the same organization node and not duplicate the edge.
	replay := invoiceExtraction()
	replay.Vendor = "  MERIDIAN   Court  Reporting "
	if _, err := m.Merge(context.Background(), invoiceEmail("msg-vendor"), &replay, "2025-CV-0042"); err != nil {
		t.Fatalf("replay merge failed: %v", err)
	}
	check()
}

func TestMergeSummaryFirstWriteWins(t *testing.T) {
	st := memory.New()
	seedCase(t, st, "2025-CV-0042")
	m := NewMerger(st)

	extraction := invoiceExtraction()
	if _, err := m.Merge(context.Background(), invoiceEmail("msg-summary"), &extraction, "2025-CV-0042"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// A later extraction may amend the draft event, but the record's
	// summary keeps its first non-empty value.
	richer := invoiceExtraction()
	richer.Summary = "Revised transcript invoice"
	richer.Confidence = 0.99
	if _, err := m.Merge(context.Background(), invoiceEmail("msg-summary"), &richer, "2025-CV-0042"); err != nil {
		t.Fatalf("replay merge failed: %v", err)
	}

	inspect(t, st, func(tx store.Tx) {
		rec, err := tx.GetRecord(context.Background(), "msg-summary")
		if err != nil || rec == nil {
			t.Fatalf("GetRecord = (%v, %v), want stored record", rec, err)
		}
		if rec.Summary != "Deposition transcript invoice" {
			t.Errorf("summary after replay = %q, want the first write preserved", rec.Summary)
		}
	})
}

func TestMergeValidation(t *testing.T) {
	m := NewMerger(memory.New())
	tests := []struct {
		name   string
		record billing.Record
	}{
		{"empty key", billing.Record{Kind: billing.KindEmail, Timestamp: mergeTime}},
		{"bad kind", billing.Record{NaturalKey: "k", Kind: "fax", Timestamp: mergeTime}},
		{"zero timestamp", billing.Record{NaturalKey: "k", Kind: billing.KindEmail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Merge(context.Background(), tt.record, nil, ""); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestDescribeEvent(t *testing.T) {
	record := invoiceEmail("msg-desc")
	got := describeEvent(record, invoiceExtraction())
	want := "Email: Invoice INV-2041 from Meridian Court Reporting [Meridian Court Reporting, invoice INV-2041, $1250.00]"
	if got != want {
		t.Errorf("describeEvent = %q, want %q", got, want)
	}
}

func TestSuggestDuration(t *testing.T) {
	tests := []struct {
		name   string
		record billing.Record
		want   float64
	}{
		{
			"short call rounds up to minimum",
			billing.Record{Kind: billing.KindPhoneCall, PhoneCall: &billing.PhoneCallPayload{DurationSecs: 90}},
			0.1,
		},
		{
			"call rounds up to tenth",
			billing.Record{Kind: billing.KindPhoneCall, PhoneCall: &billing.PhoneCallPayload{DurationSecs: 3700}},
			1.1,
		},
		{
			"email default",
			billing.Record{Kind: billing.KindEmail},
			0.2,
		},
		{
			"document default",
			billing.Record{Kind: billing.KindDocument},
			0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestDuration(tt.record); got != tt.want {
				t.Errorf("suggestDuration = %v, want %v", got, tt.want)
			}
		})
	}
}
