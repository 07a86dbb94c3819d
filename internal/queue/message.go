package queue

import "time"

// IngestMessage is one unit of work on the ingest queue: a pointer to
// archived source material plus the context the payload cannot carry
// itself. UnitID stays stable across redeliveries so parking and
// requeueing converge on one row.
type IngestMessage struct {
	UnitID        string    `json:"unit_id"`
	Kind          string    `json:"kind"`
	SourcePointer string    `json:"source_pointer"`
	CaseNumber    string    `json:"case_number,omitempty"`
	ReceivedAt    time.Time `json:"received_at,omitempty"`
	AuthorEmail   string    `json:"author_email,omitempty"`
	DocTypeHint   string    `json:"doc_type_hint,omitempty"`
}

// CaseRegisteredMessage announces a newly registered case so units
// parked waiting for it can be requeued.
type CaseRegisteredMessage struct {
	CaseNumber string `json:"case_number"`
}
