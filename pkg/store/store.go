// Package store defines the persistence contract of the billing graph.
//
// Any store offering transactional upsert-by-natural-key and indexed
// timestamp range scans qualifies. Two implementations live in the
// subpackages: memory (reference implementation, used by tests) and
// pgx (Postgres).
package store

import (
	"context"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
)

// Tx exposes the write primitives available inside one merge
// transaction. A whole merge call happens inside a single Tx; partial
// merges are never observable.
//
// Lookup methods return (nil, nil) when the row does not exist.
type Tx interface {
	GetPersonByEmail(ctx context.Context, email string) (*billing.Person, error)
	GetPersonByPhone(ctx context.Context, phone string) (*billing.Person, error)
	CreatePerson(ctx context.Context, person billing.Person) error
	// AppendPersonRoles adds roles not yet present. Roles are
	// append-only; nothing is ever removed.
	AppendPersonRoles(ctx context.Context, personID string, roles []billing.PersonRole) error

	UpsertOrganization(ctx context.Context, org billing.Organization) error

	GetCase(ctx context.Context, number string) (*billing.Case, error)

	GetRecord(ctx context.Context, naturalKey string) (*billing.Record, error)
	// UpsertRecord creates the record if absent. On replay it only
	// fills a previously empty summary or source pointer; existing
	// non-empty values are never overwritten.
	UpsertRecord(ctx context.Context, record billing.Record) error

	// EnsureEdge idempotently inserts a typed edge row.
	EnsureEdge(ctx context.Context, edge billing.Edge) error
	// EdgesFrom returns all edges of one type leaving sourceID.
	EdgesFrom(ctx context.Context, sourceID string, edgeType billing.EdgeType) ([]billing.Edge, error)

	GetEventByRecordAndCase(ctx context.Context, recordKey, caseNumber string) (*billing.Event, error)
	CreateEvent(ctx context.Context, event billing.Event) error
	// UpdateDraftEvent amends the mutable fields (description, duration,
	// amount, confidence) of a draft event. It must not touch events in
	// a terminal status.
	UpdateDraftEvent(ctx context.Context, event billing.Event) error
}

// ParkedUnit is a dead-lettered unit of work recorded for operator
// inspection and for requeueing once its case is registered.
type ParkedUnit struct {
	ID         string    `json:"id"`
	CaseNumber string    `json:"case_number,omitempty"`
	Reason     string    `json:"reason"`
	Retries    int       `json:"retries"`
	Message    []byte    `json:"message"`
	ParkedAt   time.Time `json:"parked_at"`
}

// BillingStore is the full persistence surface: transactional merges on
// the write side, lock-free consistent-snapshot reads on the read side,
// and the parked-unit ledger the coordinator maintains.
type BillingStore interface {
	// WithTx runs fn inside one transaction. An error from fn rolls the
	// transaction back; no partial merge state survives.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateCase(ctx context.Context, c billing.Case) error
	GetCase(ctx context.Context, number string) (*billing.Case, error)

	GetEvent(ctx context.Context, eventID string) (*billing.Event, error)
	// ListEvents returns events of a case with timestamp in [from, to)
	// and status in statuses, ordered by ascending timestamp with the
	// event ID as tiebreak.
	ListEvents(
		ctx context.Context,
		caseNumber string,
		from, to time.Time,
		statuses []billing.EventStatus,
	) ([]billing.Event, error)
	// TransitionEvent applies a forward-only status transition. It
	// returns billing.ErrEventNotFound for an unknown event and
	// billing.ErrInvalidTransition for a transition the lifecycle does
	// not allow.
	TransitionEvent(ctx context.Context, eventID string, next billing.EventStatus) error

	ParkUnit(ctx context.Context, unit ParkedUnit) error
	ListParkedUnits(ctx context.Context, caseNumber string) ([]ParkedUnit, error)
	CountParkedUnits(ctx context.Context, caseNumber string) (int, error)
	DeleteParkedUnit(ctx context.Context, id string) error
}
