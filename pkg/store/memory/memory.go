// Package memory is the in-memory reference implementation of the
// billing store contract. It backs the test suites and doubles as an
// executable specification of the upsert, transaction and range-query
// semantics the pgx implementation must match.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"
)

type eventKey struct {
	recordKey  string
	caseNumber string
}

type state struct {
	persons  map[string]billing.Person
	emailIdx map[string]string
	phoneIdx map[string]string
	orgs     map[string]billing.Organization
	cases    map[string]billing.Case
	records  map[string]billing.Record
	edges    map[billing.Edge]struct{}
	events   map[string]billing.Event
	eventIdx map[eventKey]string
	parked   map[string]store.ParkedUnit
}

func newState() *state {
	return &state{
		persons:  map[string]billing.Person{},
		emailIdx: map[string]string{},
		phoneIdx: map[string]string{},
		orgs:     map[string]billing.Organization{},
		cases:    map[string]billing.Case{},
		records:  map[string]billing.Record{},
		edges:    map[billing.Edge]struct{}{},
		events:   map[string]billing.Event{},
		eventIdx: map[eventKey]string{},
		parked:   map[string]store.ParkedUnit{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.persons {
		v.Roles = append([]billing.PersonRole(nil), v.Roles...)
		c.persons[k] = v
	}
	for k, v := range s.emailIdx {
		c.emailIdx[k] = v
	}
	for k, v := range s.phoneIdx {
		c.phoneIdx[k] = v
	}
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.records {
		c.records[k] = cloneRecord(v)
	}
	for k := range s.edges {
		c.edges[k] = struct{}{}
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.eventIdx {
		c.eventIdx[k] = v
	}
	for k, v := range s.parked {
		v.Message = append([]byte(nil), v.Message...)
		c.parked[k] = v
	}
	return c
}

func cloneRecord(r billing.Record) billing.Record {
	if r.Email != nil {
		e := *r.Email
		e.To = append([]string(nil), e.To...)
		e.CC = append([]string(nil), e.CC...)
		e.BCC = append([]string(nil), e.BCC...)
		r.Email = &e
	}
	if r.PhoneCall != nil {
		p := *r.PhoneCall
		p.Participants = append([]string(nil), p.Participants...)
		r.PhoneCall = &p
	}
	if r.Document != nil {
		d := *r.Document
		r.Document = &d
	}
	return r
}

// Store holds the whole graph in process memory. Write transactions
// mutate a copy of the state and swap it in on commit, so a failed
// merge leaves no partial state behind.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{state: newState()}
}

type tx struct {
	st *state
}

// WithTx serializes write transactions under one lock. That is stricter
// than the per-natural-key requirement, which keeps the reference
// implementation trivially duplicate-free.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(ctx, &tx{st: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (t *tx) GetPersonByEmail(_ context.Context, email string) (*billing.Person, error) {
	id, ok := t.st.emailIdx[email]
	if !ok {
		return nil, nil
	}
	p := t.st.persons[id]
	return &p, nil
}

func (t *tx) GetPersonByPhone(_ context.Context, phone string) (*billing.Person, error) {
	id, ok := t.st.phoneIdx[phone]
	if !ok {
		return nil, nil
	}
	p := t.st.persons[id]
	return &p, nil
}

func (t *tx) CreatePerson(_ context.Context, person billing.Person) error {
	t.st.persons[person.ID] = person
	if person.Email != "" {
		t.st.emailIdx[person.Email] = person.ID
	}
	if person.Phone != "" {
		t.st.phoneIdx[person.Phone] = person.ID
	}
	return nil
}

func (t *tx) AppendPersonRoles(_ context.Context, personID string, roles []billing.PersonRole) error {
	p, ok := t.st.persons[personID]
	if !ok {
		return nil
	}
	have := make(map[billing.PersonRole]struct{}, len(p.Roles))
	for _, r := range p.Roles {
		have[r] = struct{}{}
	}
	for _, r := range roles {
		if _, ok := have[r]; !ok {
			p.Roles = append(p.Roles, r)
			have[r] = struct{}{}
		}
	}
	t.st.persons[personID] = p
	return nil
}

func (t *tx) UpsertOrganization(_ context.Context, org billing.Organization) error {
	if _, ok := t.st.orgs[org.ID]; ok {
		return nil
	}
	t.st.orgs[org.ID] = org
	return nil
}

func (t *tx) GetCase(_ context.Context, number string) (*billing.Case, error) {
	c, ok := t.st.cases[number]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *tx) GetRecord(_ context.Context, naturalKey string) (*billing.Record, error) {
	r, ok := t.st.records[naturalKey]
	if !ok {
		return nil, nil
	}
	r = cloneRecord(r)
	return &r, nil
}

func (t *tx) UpsertRecord(_ context.Context, record billing.Record) error {
	existing, ok := t.st.records[record.NaturalKey]
	if !ok {
		t.st.records[record.NaturalKey] = cloneRecord(record)
		return nil
	}

	// Only previously empty summary and source pointer may be filled.
	if existing.Summary == "" && record.Summary != "" {
		existing.Summary = record.Summary
	}
	if existing.SourcePointer == "" && record.SourcePointer != "" {
		existing.SourcePointer = record.SourcePointer
	}
	t.st.records[record.NaturalKey] = existing
	return nil
}

func (t *tx) EnsureEdge(_ context.Context, edge billing.Edge) error {
	t.st.edges[edge] = struct{}{}
	return nil
}

func (t *tx) EdgesFrom(_ context.Context, sourceID string, edgeType billing.EdgeType) ([]billing.Edge, error) {
	var out []billing.Edge
	for e := range t.st.edges {
		if e.SourceID == sourceID && e.Type == edgeType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (t *tx) GetEventByRecordAndCase(_ context.Context, recordKey, caseNumber string) (*billing.Event, error) {
	id, ok := t.st.eventIdx[eventKey{recordKey, caseNumber}]
	if !ok {
		return nil, nil
	}
	ev := t.st.events[id]
	return &ev, nil
}

func (t *tx) CreateEvent(_ context.Context, event billing.Event) error {
	t.st.events[event.ID] = event
	t.st.eventIdx[eventKey{event.RecordKey, event.CaseNumber}] = event.ID
	return nil
}

func (t *tx) UpdateDraftEvent(_ context.Context, event billing.Event) error {
	existing, ok := t.st.events[event.ID]
	if !ok || existing.Status != billing.EventDraft {
		return nil
	}
	existing.Description = event.Description
	existing.DurationHours = event.DurationHours
	existing.Amount = event.Amount
	existing.Confidence = event.Confidence
	t.st.events[event.ID] = existing
	return nil
}

// CreateCase registers a case; the registry is the only writer of case
// nodes.
func (s *Store) CreateCase(_ context.Context, c billing.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.cases[c.Number]; !ok {
		s.state.cases[c.Number] = c
	}
	return nil
}

// GetCase returns a case by number, or nil when unknown.
func (s *Store) GetCase(_ context.Context, number string) (*billing.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cases[number]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// GetEvent returns an event by ID, or nil when unknown.
func (s *Store) GetEvent(_ context.Context, eventID string) (*billing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.state.events[eventID]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// ListEvents returns the case's events with timestamp in [from, to) and
// a matching status, ordered by timestamp then event ID.
func (s *Store) ListEvents(
	_ context.Context,
	caseNumber string,
	from, to time.Time,
	statuses []billing.EventStatus,
) ([]billing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[billing.EventStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}

	var out []billing.Event
	for _, ev := range s.state.events {
		if ev.CaseNumber != caseNumber {
			continue
		}
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[ev.Status]; !ok {
				continue
			}
		}
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TransitionEvent applies a forward-only lifecycle transition.
func (s *Store) TransitionEvent(_ context.Context, eventID string, next billing.EventStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.state.events[eventID]
	if !ok {
		return billing.ErrEventNotFound
	}
	if !ev.Status.CanTransitionTo(next) {
		return billing.ErrInvalidTransition
	}
	ev.Status = next
	s.state.events[eventID] = ev
	return nil
}

// ParkUnit records a dead-lettered unit of work.
func (s *Store) ParkUnit(_ context.Context, unit store.ParkedUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit.Message = append([]byte(nil), unit.Message...)
	s.state.parked[unit.ID] = unit
	return nil
}

// ListParkedUnits returns parked units, optionally filtered by case.
func (s *Store) ListParkedUnits(_ context.Context, caseNumber string) ([]store.ParkedUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.ParkedUnit
	for _, u := range s.state.parked {
		if caseNumber != "" && u.CaseNumber != caseNumber {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountParkedUnits counts parked units for one case.
func (s *Store) CountParkedUnits(ctx context.Context, caseNumber string) (int, error) {
	units, err := s.ListParkedUnits(ctx, caseNumber)
	if err != nil {
		return 0, err
	}
	return len(units), nil
}

// DeleteParkedUnit removes a parked unit after requeue or remediation.
func (s *Store) DeleteParkedUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.parked, id)
	return nil
}
