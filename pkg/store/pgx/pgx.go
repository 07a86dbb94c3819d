// Package pgx is the Postgres implementation of the billing store. All
// node and edge tables use natural-key upserts so the merge engine can
// replay units without growing the graph.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a billing store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := fn(ctx, &billingTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type billingTx struct {
	tx pgx.Tx
}

// recordPayload is the JSONB shape of the kind-specific record fields.
type recordPayload struct {
	Email     *billing.EmailPayload     `json:"email,omitempty"`
	PhoneCall *billing.PhoneCallPayload `json:"phone_call,omitempty"`
	Document  *billing.DocumentPayload  `json:"document,omitempty"`
}

const selectPersonSQL = `
SELECT id, email, phone, display_name, roles
FROM persons
`

func scanPerson(row pgx.Row) (*billing.Person, error) {
	var (
		p            billing.Person
		email, phone *string
		roles        []string
	)
	err := row.Scan(&p.ID, &email, &phone, &p.DisplayName, &roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	for _, r := range roles {
		p.Roles = append(p.Roles, billing.PersonRole(r))
	}
	return &p, nil
}

func (t *billingTx) GetPersonByEmail(ctx context.Context, email string) (*billing.Person, error) {
	return scanPerson(t.tx.QueryRow(ctx, selectPersonSQL+`WHERE email = $1`, email))
}

func (t *billingTx) GetPersonByPhone(ctx context.Context, phone string) (*billing.Person, error) {
	return scanPerson(t.tx.QueryRow(ctx, selectPersonSQL+`WHERE phone = $1`, phone))
}

func (t *billingTx) CreatePerson(ctx context.Context, person billing.Person) error {
	roles := make([]string, 0, len(person.Roles))
	for _, r := range person.Roles {
		roles = append(roles, string(r))
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO persons (id, email, phone, display_name, roles)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
`, person.ID, person.Email, person.Phone, person.DisplayName, roles)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

func (t *billingTx) AppendPersonRoles(ctx context.Context, personID string, roles []billing.PersonRole) error {
	if len(roles) == 0 {
		return nil
	}
	add := make([]string, 0, len(roles))
	for _, r := range roles {
		add = append(add, string(r))
	}
	_, err := t.tx.Exec(ctx, `
UPDATE persons
SET roles = roles || (
	SELECT COALESCE(array_agg(r), '{}'::text[])
	FROM unnest($2::text[]) AS r
	WHERE NOT (r = ANY(roles))
)
WHERE id = $1
`, personID, add)
	if err != nil {
		return fmt.Errorf("failed to append person roles: %w", err)
	}
	return nil
}

func (t *billingTx) UpsertOrganization(ctx context.Context, org billing.Organization) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO organizations (id, name)
VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING
`, org.ID, org.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert organization: %w", err)
	}
	return nil
}

func (t *billingTx) GetCase(ctx context.Context, number string) (*billing.Case, error) {
	return scanCase(t.tx.QueryRow(ctx, selectCaseSQL, number))
}

func (t *billingTx) GetRecord(ctx context.Context, naturalKey string) (*billing.Record, error) {
	var (
		r       billing.Record
		payload []byte
	)
	err := t.tx.QueryRow(ctx, `
SELECT natural_key, kind, ts, summary, source_pointer, payload
FROM records
WHERE natural_key = $1
`, naturalKey).Scan(&r.NaturalKey, &r.Kind, &r.Timestamp, &r.Summary, &r.SourcePointer, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var p recordPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	r.Email, r.PhoneCall, r.Document = p.Email, p.PhoneCall, p.Document
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// UpsertRecord inserts a record or, when the key exists, fills in only
// the fields that are still empty. Kind, timestamp and payload never
// change after the first write.
func (t *billingTx) UpsertRecord(ctx context.Context, record billing.Record) error {
	payload, err := json.Marshal(recordPayload{
		Email:     record.Email,
		PhoneCall: record.PhoneCall,
		Document:  record.Document,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record payload: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
INSERT INTO records (natural_key, kind, ts, summary, source_pointer, payload)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (natural_key) DO UPDATE
SET summary        = CASE WHEN records.summary = '' THEN EXCLUDED.summary ELSE records.summary END,
    source_pointer = CASE WHEN records.source_pointer = '' THEN EXCLUDED.source_pointer ELSE records.source_pointer END
`, record.NaturalKey, record.Kind, record.Timestamp, record.Summary, record.SourcePointer, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (t *billingTx) EnsureEdge(ctx context.Context, edge billing.Edge) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO edges (source_id, edge_type, target_id)
VALUES ($1, $2, $3)
ON CONFLICT (source_id, edge_type, target_id) DO NOTHING
`, edge.SourceID, edge.Type, edge.TargetID)
	if err != nil {
		return fmt.Errorf("failed to ensure edge: %w", err)
	}
	return nil
}

func (t *billingTx) EdgesFrom(ctx context.Context, sourceID string, edgeType billing.EdgeType) ([]billing.Edge, error) {
	rows, err := t.tx.Query(ctx, `
SELECT source_id, edge_type, target_id
FROM edges
WHERE source_id = $1 AND edge_type = $2
ORDER BY target_id
`, sourceID, edgeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var out []billing.Edge
	for rows.Next() {
		var e billing.Edge
		if err := rows.Scan(&e.SourceID, &e.Type, &e.TargetID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const selectEventSQL = `
SELECT id, record_key, case_number, description, ts, duration_hours,
       status, source_type, amount, confidence
FROM billable_events
`

func scanEvent(row pgx.Row) (*billing.Event, error) {
	var ev billing.Event
	err := row.Scan(
		&ev.ID, &ev.RecordKey, &ev.CaseNumber, &ev.Description, &ev.Timestamp,
		&ev.DurationHours, &ev.Status, &ev.SourceType, &ev.Amount, &ev.Confidence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return &ev, nil
}

func (t *billingTx) GetEventByRecordAndCase(ctx context.Context, recordKey, caseNumber string) (*billing.Event, error) {
	return scanEvent(t.tx.QueryRow(
		ctx, selectEventSQL+`WHERE record_key = $1 AND case_number = $2`,
		recordKey, caseNumber,
	))
}

func (t *billingTx) CreateEvent(ctx context.Context, event billing.Event) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO billable_events
	(id, record_key, case_number, description, ts, duration_hours,
	 status, source_type, amount, confidence)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`,
		event.ID, event.RecordKey, event.CaseNumber, event.Description, event.Timestamp,
		event.DurationHours, event.Status, event.SourceType, event.Amount, event.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to create billable event: %w", err)
	}
	return nil
}

func (t *billingTx) UpdateDraftEvent(ctx context.Context, event billing.Event) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE billable_events
SET description = $2, duration_hours = $3, amount = $4, confidence = $5
WHERE id = $1 AND status = 'draft'
`, event.ID, event.Description, event.DurationHours, event.Amount, event.Confidence)
	if err != nil {
		return fmt.Errorf("failed to update draft event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrImmutableEvent
	}
	return nil
}

const selectCaseSQL = `
SELECT number, name, status
FROM cases
WHERE number = $1
`

func scanCase(row pgx.Row) (*billing.Case, error) {
	var c billing.Case
	err := row.Scan(&c.Number, &c.Name, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCase registers a case. Registration is idempotent; the first
// write wins.
func (s *Store) CreateCase(ctx context.Context, c billing.Case) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO cases (number, name, status)
VALUES ($1, $2, $3)
ON CONFLICT (number) DO NOTHING
`, c.Number, c.Name, c.Status)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (s *Store) GetCase(ctx context.Context, number string) (*billing.Case, error) {
	return scanCase(s.pool.QueryRow(ctx, selectCaseSQL, number))
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*billing.Event, error) {
	return scanEvent(s.pool.QueryRow(ctx, selectEventSQL+`WHERE id = $1`, eventID))
}

// ListEvents returns the case's events with timestamp in [from, to) and
// a matching status, ordered by timestamp then event ID.
func (s *Store) ListEvents(
	ctx context.Context,
	caseNumber string,
	from, to time.Time,
	statuses []billing.EventStatus,
) ([]billing.Event, error) {
	filter := make([]string, 0, len(statuses))
	for _, st := range statuses {
		filter = append(filter, string(st))
	}

	rows, err := s.pool.Query(ctx, selectEventSQL+`
WHERE case_number = $1
  AND ts >= $2 AND ts < $3
  AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))
ORDER BY ts, id
`, caseNumber, from, to, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list billable events: %w", err)
	}
	defer rows.Close()

	var out []billing.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// TransitionEvent applies a forward-only lifecycle transition.
func (s *Store) TransitionEvent(ctx context.Context, eventID string, next billing.EventStatus) error {
	var current billing.EventStatus
	err := s.pool.QueryRow(ctx, `
SELECT status FROM billable_events WHERE id = $1
`, eventID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get event status: %w", err)
	}
	if !current.CanTransitionTo(next) {
		return billing.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE billable_events SET status = $2
WHERE id = $1 AND status = $3
`, eventID, next, current)
	if err != nil {
		return fmt.Errorf("failed to transition event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race against a concurrent decision.
		return billing.ErrInvalidTransition
	}
	return nil
}

func (s *Store) ParkUnit(ctx context.Context, unit store.ParkedUnit) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO parked_units (id, case_number, reason, retries, message, parked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET reason = EXCLUDED.reason, retries = EXCLUDED.retries, parked_at = EXCLUDED.parked_at
`, unit.ID, unit.CaseNumber, unit.Reason, unit.Retries, unit.Message, unit.ParkedAt)
	if err != nil {
		return fmt.Errorf("failed to park unit: %w", err)
	}
	return nil
}

func (s *Store) ListParkedUnits(ctx context.Context, caseNumber string) ([]store.ParkedUnit, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, case_number, reason, retries, message, parked_at
FROM parked_units
WHERE $1 = '' OR case_number = $1
ORDER BY id
`, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list parked units: %w", err)
	}
	defer rows.Close()

	var out []store.ParkedUnit
	for rows.Next() {
		var u store.ParkedUnit
		if err := rows.Scan(&u.ID, &u.CaseNumber, &u.Reason, &u.Retries, &u.Message, &u.ParkedAt); err != nil {
			return nil, err
		}
		u.ParkedAt = u.ParkedAt.UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountParkedUnits(ctx context.Context, caseNumber string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
SELECT count(*) FROM parked_units WHERE $1 = '' OR case_number = $1
`, caseNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count parked units: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteParkedUnit(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM parked_units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete parked unit: %w", err)
	}
	return nil
}
