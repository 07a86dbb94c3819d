package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/extract"
	"github.com/trestle-legal/docket/pkg/store"
	"github.com/trestle-legal/docket/pkg/store/memory"
)

const ingestTestEmail = "Message-ID: <msg-700@mail.vendor.com>\r\n" +
	"Date: Fri, 14 Mar 2025 10:30:00 +0000\r\n" +
	"Subject: Invoice INV-7001\r\n" +
	"From: Meridian Billing <billing@meridiancr.com>\r\n" +
	"To: jdoe@trestle.legal\r\n" +
	"\r\n" +
	"Court reporting services for deposition of R. Alvarez.\r\n" +
	"Total due: $980.00\r\n"

type mapSource map[string][]byte

func (m mapSource) Fetch(_ context.Context, pointer string) ([]byte, error) {
	data, ok := m[pointer]
	if !ok {
		return nil, fmt.Errorf("no object at %s", pointer)
	}
	return data, nil
}

func ingestMessage(t *testing.T, caseNumber string) string {
	t.Helper()
	data, err := json.Marshal(IngestMessage{
		UnitID:        "unit-1",
		Kind:          string(billing.KindEmail),
		SourcePointer: "sources/email/unit-1_invoice.eml",
		CaseNumber:    caseNumber,
		ReceivedAt:    time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return string(data)
}

func testSource() mapSource {
	return mapSource{"sources/email/unit-1_invoice.eml": []byte(ingestTestEmail)}
}

func TestProcessIngestMergesUnit(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	if err := st.CreateCase(ctx, billing.Case{Number: "2025-CV-0042", Name: "Harmon v. Delta Freight", Status: billing.CaseOpen}); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	msg := ingestMessage(t, "2025-cv-0042")
	if err := ProcessIngestMessage(ctx, testSource(), extract.NewHeuristicExtractor(), st, nil, msg, 0); err != nil {
		t.Fatalf("ProcessIngestMessage failed: %v", err)
	}

	var record *billing.Record
	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		record, txErr = tx.GetRecord(ctx, "msg-700@mail.vendor.com")
		return txErr
	})
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record == nil {
		t.Fatal("record was not merged")
	}

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	events, err := st.ListEvents(ctx, "2025-CV-0042", from, to, nil)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Amount != 980 {
		t.Errorf("event amount = %v, want 980", events[0].Amount)
	}
	if events[0].Status != billing.EventDraft {
		t.Errorf("event status = %s, want draft", events[0].Status)
	}

	// Redelivery of the same unit must not create a second event.
	if err := ProcessIngestMessage(ctx, testSource(), extract.NewHeuristicExtractor(), st, nil, msg, 1); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	events, err = st.ListEvents(ctx, "2025-CV-0042", from, to, nil)
	if err != nil {
		t.Fatalf("ListEvents after replay failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after replay, want 1", len(events))
	}
}

func TestProcessIngestParksUnknownCase(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	msg := ingestMessage(t, "2099-CV-9999")
	if err := ProcessIngestMessage(ctx, testSource(), extract.NewHeuristicExtractor(), st, nil, msg, 3); err != nil {
		t.Fatalf("expected ack on unknown case, got %v", err)
	}

	units, err := st.ListParkedUnits(ctx, "2099-CV-9999")
	if err != nil {
		t.Fatalf("ListParkedUnits failed: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d parked units, want 1", len(units))
	}
	unit := units[0]
	if unit.ID != "unit-1" {
		t.Errorf("parked unit id = %q", unit.ID)
	}
	if unit.Reason != "unknown_case" {
		t.Errorf("reason = %q, want unknown_case", unit.Reason)
	}
	if unit.Retries != 3 {
		t.Errorf("retries = %d, want 3", unit.Retries)
	}
	if string(unit.Message) != msg {
		t.Error("parked message does not round-trip the original")
	}

	// The unit must not have leaked into the graph.
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		record, txErr := tx.GetRecord(ctx, "msg-700@mail.vendor.com")
		if txErr != nil {
			return txErr
		}
		if record != nil {
			t.Error("record persisted despite unknown case")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
}

func TestProcessIngestRejectsBadMessage(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if err := ProcessIngestMessage(ctx, testSource(), extract.NewHeuristicExtractor(), st, nil, "{not json", 0); err == nil {
		t.Error("expected error for malformed message")
	}
	if err := ProcessIngestMessage(ctx, testSource(), extract.NewHeuristicExtractor(), st, nil, "{}", 0); err == nil {
		t.Error("expected error for message without unit_id")
	}
}

func TestProcessIngestMissingSource(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	if err := st.CreateCase(ctx, billing.Case{Number: "2025-CV-0042", Name: "Harmon v. Delta Freight", Status: billing.CaseOpen}); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	msg := ingestMessage(t, "2025-CV-0042")
	err := ProcessIngestMessage(ctx, mapSource{}, extract.NewHeuristicExtractor(), st, nil, msg, 0)
	if err == nil {
		t.Fatal("expected error when the source object is missing")
	}
}
