// Package query is the attorney-facing read and decision surface over
// the billing graph: listing candidate line items for a case and
// approving or rejecting drafts.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"
)

// Service answers billing queries against a BillingStore.
type Service struct {
	store store.BillingStore
}

// NewService returns a query service over st.
func NewService(st store.BillingStore) *Service {
	return &Service{store: st}
}

// EventsRequest selects billable events of one case. Zero From/To mean
// unbounded; an empty Statuses list defaults to drafts, the set an
// attorney reviews.
type EventsRequest struct {
	CaseNumber string
	From       time.Time
	To         time.Time
	Statuses   []billing.EventStatus
}

// EventsResponse is one page of billable events plus the ingestion
// health of the case they belong to.
type EventsResponse struct {
	CaseNumber string          `json:"case_number"`
	Events     []billing.Event `json:"events"`

	TotalHours  float64 `json:"total_hours"`
	TotalAmount float64 `json:"total_amount"`

	// IngestionIncomplete warns that units referencing this case are
	// parked, so the listing may be missing line items.
	IngestionIncomplete bool `json:"ingestion_incomplete"`
	PendingUnits        int  `json:"pending_units,omitempty"`
}

// ListBillableEvents returns the case's events ordered by timestamp
// with the event ID as tiebreak. The unknown-case answer is an error,
// not an empty list, so a typo is not mistaken for a clean bill.
func (s *Service) ListBillableEvents(ctx context.Context, req EventsRequest) (EventsResponse, error) {
	caseNumber := billing.NormalizeCaseNumber(req.CaseNumber)

	c, err := s.store.GetCase(ctx, caseNumber)
	if err != nil {
		return EventsResponse{}, fmt.Errorf("failed to look up case: %w", err)
	}
	if c == nil {
		return EventsResponse{}, &billing.UnknownCaseError{CaseNumber: caseNumber}
	}

	from := req.From
	to := req.To
	if to.IsZero() {
		// Far enough out to be unbounded in practice.
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = []billing.EventStatus{billing.EventDraft}
	}

	events, err := s.store.ListEvents(ctx, caseNumber, from, to, statuses)
	if err != nil {
		return EventsResponse{}, fmt.Errorf("failed to list billable events: %w", err)
	}

	resp := EventsResponse{
		CaseNumber: caseNumber,
		Events:     events,
	}
	for _, ev := range events {
		resp.TotalHours += ev.DurationHours
		resp.TotalAmount += ev.Amount
	}

	pending, err := s.store.CountParkedUnits(ctx, caseNumber)
	if err != nil {
		return EventsResponse{}, fmt.Errorf("failed to count parked units: %w", err)
	}
	resp.PendingUnits = pending
	resp.IngestionIncomplete = pending > 0

	return resp, nil
}

// Approve moves a draft event to approved and returns the updated
// event.
func (s *Service) Approve(ctx context.Context, eventID string) (billing.Event, error) {
	return s.decide(ctx, eventID, billing.EventApproved)
}

// Reject moves a draft event to rejected and returns the updated
// event.
func (s *Service) Reject(ctx context.Context, eventID string) (billing.Event, error) {
	return s.decide(ctx, eventID, billing.EventRejected)
}

func (s *Service) decide(ctx context.Context, eventID string, next billing.EventStatus) (billing.Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return billing.Event{}, fmt.Errorf("failed to look up billable event: %w", err)
	}
	if ev == nil {
		return billing.Event{}, fmt.Errorf("%w: %s", billing.ErrEventNotFound, eventID)
	}

	if err := s.store.TransitionEvent(ctx, eventID, next); err != nil {
		return billing.Event{}, err
	}
	ev.Status = next
	return *ev, nil
}
