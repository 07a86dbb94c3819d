// Package graph implements the merge engine: the single write path
// that folds normalized communication records and their billing
// extractions into the graph store.
//
// Every merge is idempotent. Re-merging the identical (record,
// extraction, case) triple any number of times yields the same graph
// state, which is what makes the coordinator's at-least-once delivery
// safe.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/resolve"
	"github.com/trestle-legal/docket/pkg/store"

	"github.com/google/uuid"
)

// Merger merges records into a billing store. It holds no per-merge
// state and is safe for concurrent use.
type Merger struct {
	store store.BillingStore
}

// NewMerger returns a merge engine over st.
func NewMerger(st store.BillingStore) *Merger {
	return &Merger{store: st}
}

// MergeResult reports what one merge call changed.
type MergeResult struct {
	RecordKey     string `json:"record_key"`
	CaseNumber    string `json:"case_number,omitempty"`
	RecordCreated bool   `json:"record_created"`
	CaseLinked    bool   `json:"case_linked"`

	EventID        string `json:"event_id,omitempty"`
	EventCreated   bool   `json:"event_created"`
	EventAmended   bool   `json:"event_amended"`
	EventImmutable bool   `json:"event_immutable"`
}

// Merge applies one record (and optionally its extraction) to the graph
// inside a single store transaction.
//
// With an empty caseKey the record and its participant edges are
// upserted but no case link or billable event is created; the unit can
// be re-merged later once a case is known. With an unknown caseKey the
// whole transaction rolls back, record upsert included, and
// billing.UnknownCaseError is returned.
func (m *Merger) Merge(
	ctx context.Context,
	record billing.Record,
	extraction *billing.Extraction,
	caseKey string,
) (MergeResult, error) {
	if err := validateRecord(record); err != nil {
		return MergeResult{}, err
	}
	record.Timestamp = record.Timestamp.UTC()

	caseNumber := billing.NormalizeCaseNumber(caseKey)
	result := MergeResult{RecordKey: record.NaturalKey, CaseNumber: caseNumber}

	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetRecord(ctx, record.NaturalKey)
		if err != nil {
			return fmt.Errorf("failed to look up record: %w", err)
		}
		result.RecordCreated = existing == nil

		if record.Summary == "" && extraction != nil {
			record.Summary = extraction.Summary
		}
		if err := tx.UpsertRecord(ctx, record); err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}

		if err := mergeParticipants(ctx, tx, record); err != nil {
			return err
		}

		if extraction != nil && extraction.Vendor != "" {
			if err := mergeVendor(ctx, tx, record, extraction.Vendor); err != nil {
				return err
			}
		}

		if caseNumber == "" {
			return nil
		}

		c, err := tx.GetCase(ctx, caseNumber)
		if err != nil {
			return fmt.Errorf("failed to look up case: %w", err)
		}
		if c == nil {
			return &billing.UnknownCaseError{CaseNumber: caseNumber}
		}

		if err := tx.EnsureEdge(ctx, billing.Edge{
			SourceID: record.NaturalKey,
			Type:     billing.EdgeRelatesTo,
			TargetID: caseNumber,
		}); err != nil {
			return fmt.Errorf("failed to link record to case: %w", err)
		}
		result.CaseLinked = true

		if extraction == nil || !extraction.BillingSignal() {
			return nil
		}
		return m.mergeEvent(ctx, tx, record, *extraction, caseNumber, &result)
	})
	if err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

// mergeEvent upserts the billable event keyed by (record, case) and
// maintains the GENERATED and denormalized FOR_CASE edges.
func (m *Merger) mergeEvent(
	ctx context.Context,
	tx store.Tx,
	record billing.Record,
	extraction billing.Extraction,
	caseNumber string,
	result *MergeResult,
) error {
	event, err := tx.GetEventByRecordAndCase(ctx, record.NaturalKey, caseNumber)
	if err != nil {
		return fmt.Errorf("failed to look up billable event: %w", err)
	}

	switch {
	case event == nil:
		created := billing.Event{
			ID:            uuid.NewString(),
			RecordKey:     record.NaturalKey,
			CaseNumber:    caseNumber,
			Description:   describeEvent(record, extraction),
			Timestamp:     record.Timestamp,
			DurationHours: suggestDuration(record),
			Status:        billing.EventDraft,
			SourceType:    record.Kind,
			Amount:        extraction.TotalAmount,
			Confidence:    extraction.Confidence,
		}
		if err := tx.CreateEvent(ctx, created); err != nil {
			return fmt.Errorf("failed to create billable event: %w", err)
		}
		if err := tx.EnsureEdge(ctx, billing.Edge{
			SourceID: record.NaturalKey,
			Type:     billing.EdgeGenerated,
			TargetID: created.ID,
		}); err != nil {
			return fmt.Errorf("failed to link record to event: %w", err)
		}
		event = &created
		result.EventCreated = true

	case event.Status == billing.EventDraft:
		// Never downgrade a draft with lower-confidence data.
		if extraction.Confidence >= event.Confidence {
			amended := *event
			amended.Description = describeEvent(record, extraction)
			amended.DurationHours = suggestDuration(record)
			amended.Amount = extraction.TotalAmount
			amended.Confidence = extraction.Confidence
			if err := tx.UpdateDraftEvent(ctx, amended); err != nil {
				return fmt.Errorf("failed to amend billable event: %w", err)
			}
			result.EventAmended = amended != *event
			event = &amended
		}

	default:
		// Approved and rejected events are immutable against replayed
		// extractions. Not an error: noted and skipped.
		logger.Info(
			"[Merge] Skipping extraction amendment of decided event",
			"event_id", event.ID,
			"status", event.Status,
			"record", record.NaturalKey,
		)
		result.EventImmutable = true
	}

	result.EventID = event.ID

	return verifyForCase(ctx, tx, event, caseNumber)
}

// verifyForCase checks the denormalized FOR_CASE edge against the case
// the generating record RELATES_TO. A mismatch is surfaced, never
// repaired, so an operator investigates the root cause.
func verifyForCase(ctx context.Context, tx store.Tx, event *billing.Event, caseNumber string) error {
	edges, err := tx.EdgesFrom(ctx, event.ID, billing.EdgeForCase)
	if err != nil {
		return fmt.Errorf("failed to read FOR_CASE edges: %w", err)
	}
	for _, e := range edges {
		if e.TargetID != caseNumber {
			return &billing.DataIntegrityError{
				EventID:   event.ID,
				ForCase:   e.TargetID,
				RelatesTo: caseNumber,
			}
		}
	}
	return tx.EnsureEdge(ctx, billing.Edge{
		SourceID: event.ID,
		Type:     billing.EdgeForCase,
		TargetID: caseNumber,
	})
}

// mergeParticipants upserts the person nodes referenced by the record
// and their typed edges. Participants without a usable identity key are
// skipped rather than failing the merge.
func mergeParticipants(ctx context.Context, tx store.Tx, record billing.Record) error {
	link := func(hints resolve.Hints, edgeType billing.EdgeType) error {
		if billing.NormalizeEmail(hints.Email) == "" && billing.NormalizePhone(hints.Phone) == "" {
			return nil
		}
		ref, err := resolve.Resolve(ctx, tx, hints)
		if err != nil {
			return fmt.Errorf("failed to resolve participant: %w", err)
		}
		if err := tx.EnsureEdge(ctx, billing.Edge{
			SourceID: ref.ID,
			Type:     edgeType,
			TargetID: record.NaturalKey,
		}); err != nil {
			return fmt.Errorf("failed to link participant: %w", err)
		}
		return nil
	}

	switch record.Kind {
	case billing.KindEmail:
		if record.Email == nil {
			return nil
		}
		if err := link(resolve.Hints{Email: record.Email.From}, billing.EdgeSent); err != nil {
			return err
		}
		for _, addr := range record.Email.To {
			if err := link(resolve.Hints{Email: addr}, billing.EdgeTo); err != nil {
				return err
			}
		}
		for _, addr := range record.Email.CC {
			if err := link(resolve.Hints{Email: addr}, billing.EdgeCC); err != nil {
				return err
			}
		}
		for _, addr := range record.Email.BCC {
			if err := link(resolve.Hints{Email: addr}, billing.EdgeBCC); err != nil {
				return err
			}
		}

	case billing.KindPhoneCall:
		if record.PhoneCall == nil {
			return nil
		}
		for _, phone := range record.PhoneCall.Participants {
			if err := link(resolve.Hints{Phone: phone}, billing.EdgeParticipatedIn); err != nil {
				return err
			}
		}

	case billing.KindDocument:
		if record.Document == nil || record.Document.AuthorEmail == "" {
			return nil
		}
		if err := link(resolve.Hints{Email: record.Document.AuthorEmail}, billing.EdgeAuthored); err != nil {
			return err
		}
	}

	return nil
}

// mergeVendor upserts the extracted vendor as an organization node,
// keyed by its normalized name, and links the record's originator to it
// with a MEMBER_OF edge.
func mergeVendor(ctx context.Context, tx store.Tx, record billing.Record, vendor string) error {
	orgID := billing.NormalizeOrgName(vendor)
	if orgID == "" {
		return nil
	}

	if err := tx.UpsertOrganization(ctx, billing.Organization{
		ID:   orgID,
		Name: strings.TrimSpace(vendor),
	}); err != nil {
		return fmt.Errorf("failed to upsert organization: %w", err)
	}

	var email string
	switch record.Kind {
	case billing.KindEmail:
		if record.Email != nil {
			email = record.Email.From
		}
	case billing.KindDocument:
		if record.Document != nil {
			email = record.Document.AuthorEmail
		}
	}
	if billing.NormalizeEmail(email) == "" {
		return nil
	}

	ref, err := resolve.Resolve(ctx, tx, resolve.Hints{
		Email: email,
		Roles: []billing.PersonRole{billing.RoleVendor},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve vendor contact: %w", err)
	}
	if err := tx.EnsureEdge(ctx, billing.Edge{
		SourceID: ref.ID,
		Type:     billing.EdgeMemberOf,
		TargetID: orgID,
	}); err != nil {
		return fmt.Errorf("failed to link vendor contact to organization: %w", err)
	}
	return nil
}

func validateRecord(record billing.Record) error {
	if record.NaturalKey == "" {
		return fmt.Errorf("record natural key is empty")
	}
	if !record.Kind.Valid() {
		return fmt.Errorf("unknown record kind %q", record.Kind)
	}
	if record.Timestamp.IsZero() {
		return fmt.Errorf("record %s has no timestamp", record.NaturalKey)
	}
	return nil
}
