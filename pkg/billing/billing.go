// Package billing defines the graph domain model shared across the
// ingestion pipeline: people, organizations, cases, communication
// records and the billable events derived from them.
//
// Nodes are identified by natural keys (normalized email or phone for a
// person, case number for a case, a source-specific key for a record) so
// that re-ingesting the same source material is idempotent. Relations
// are explicit typed edges keyed by (source, type, target), never object
// pointers.
package billing

import (
	"time"
)

// RecordKind discriminates the communication record variants.
type RecordKind string

const (
	KindEmail     RecordKind = "email"
	KindPhoneCall RecordKind = "phone_call"
	KindDocument  RecordKind = "document"
)

// Valid reports whether k is one of the known record kinds.
func (k RecordKind) Valid() bool {
	switch k {
	case KindEmail, KindPhoneCall, KindDocument:
		return true
	}
	return false
}

// PersonRole is an append-only role tag on a person node.
type PersonRole string

const (
	RoleClient          PersonRole = "client"
	RoleOpposingCounsel PersonRole = "opposing_counsel"
	RoleVendor          PersonRole = "vendor"
	RoleAttorney        PersonRole = "attorney"
)

// Person is a node identified by normalized email or normalized phone.
// At least one of the two keys must be present. Roles only ever grow.
type Person struct {
	ID          string       `json:"id"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
	Roles       []PersonRole `json:"roles,omitempty"`
}

// HasIdentity reports whether the person carries at least one identity key.
func (p Person) HasIdentity() bool {
	return p.Email != "" || p.Phone != ""
}

// Organization is a node identified by its normalized name.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseOpen   CaseStatus = "open"
	CaseClosed CaseStatus = "closed"
)

// Case is created by an attorney-facing registry action and only ever
// referenced by the merge engine. Identity key is the case number.
type Case struct {
	Number string     `json:"number"`
	Name   string     `json:"name"`
	Status CaseStatus `json:"status"`
}

// EmailPayload holds the email-specific fields of a record.
type EmailPayload struct {
	MessageID string   `json:"message_id"`
	Subject   string   `json:"subject,omitempty"`
	From      string   `json:"from,omitempty"`
	To        []string `json:"to,omitempty"`
	CC        []string `json:"cc,omitempty"`
	BCC       []string `json:"bcc,omitempty"`
}

// PhoneCallPayload holds the call-specific fields of a record.
type PhoneCallPayload struct {
	CallID       string   `json:"call_id"`
	Participants []string `json:"participants,omitempty"`
	DurationSecs int      `json:"duration_secs,omitempty"`
}

// DocumentPayload holds the document-specific fields of a record.
type DocumentPayload struct {
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	AuthorEmail string `json:"author_email,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
}

// Record is a communication record: a tagged union over the three
// variants. Exactly one of the payload fields matching Kind is set.
//
// A record is immutable once merged, except that an empty summary may be
// filled in later. NaturalKey is the idempotent upsert key: message id
// for emails, call id for calls, content hash + filename for documents.
type Record struct {
	NaturalKey    string     `json:"natural_key"`
	Kind          RecordKind `json:"kind"`
	Timestamp     time.Time  `json:"timestamp"`
	Summary       string     `json:"summary,omitempty"`
	SourcePointer string     `json:"source_pointer,omitempty"`

	Email     *EmailPayload     `json:"email,omitempty"`
	PhoneCall *PhoneCallPayload `json:"phone_call,omitempty"`
	Document  *DocumentPayload  `json:"document,omitempty"`
}

// EventStatus is the billable event lifecycle state. Transitions are
// forward-only: draft may become approved or rejected, both terminal.
type EventStatus string

const (
	EventDraft    EventStatus = "draft"
	EventApproved EventStatus = "approved"
	EventRejected EventStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s EventStatus) Terminal() bool {
	return s == EventApproved || s == EventRejected
}

// CanTransitionTo reports whether the forward-only lifecycle allows
// moving from s to next.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	if s != EventDraft {
		return false
	}
	return next == EventApproved || next == EventRejected
}

// Event is a candidate billable line item. It is created at most once
// per (record natural key, case number) pair regardless of how many
// times the source record is re-ingested.
type Event struct {
	ID            string      `json:"id"`
	RecordKey     string      `json:"record_key"`
	CaseNumber    string      `json:"case_number"`
	Description   string      `json:"description"`
	Timestamp     time.Time   `json:"timestamp"`
	DurationHours float64     `json:"duration_hours"`
	Status        EventStatus `json:"status"`
	SourceType    RecordKind  `json:"source_type"`
	Amount        float64     `json:"amount,omitempty"`

	// Confidence of the extraction that last amended the draft. Replays
	// carrying a lower confidence never downgrade the stored fields.
	Confidence float64 `json:"confidence"`
}

// EdgeType names a typed relation between two nodes.
type EdgeType string

const (
	EdgeSent           EdgeType = "SENT"
	EdgeTo             EdgeType = "TO"
	EdgeCC             EdgeType = "CC"
	EdgeBCC            EdgeType = "BCC"
	EdgeParticipatedIn EdgeType = "PARTICIPATED_IN"
	EdgeAuthored       EdgeType = "AUTHORED"
	EdgeRelatesTo      EdgeType = "RELATES_TO"
	EdgeGenerated      EdgeType = "GENERATED"
	EdgeForCase        EdgeType = "FOR_CASE"
	EdgeMemberOf       EdgeType = "MEMBER_OF"
	EdgeManages        EdgeType = "MANAGES"
	EdgeRepresents     EdgeType = "REPRESENTS"
)

// Edge is a typed relation stored as an adjacency row. SourceID and
// TargetID are the natural keys of the endpoints for their node type.
type Edge struct {
	SourceID string   `json:"source_id"`
	Type     EdgeType `json:"type"`
	TargetID string   `json:"target_id"`
}

// DocumentType is the classified type of a document's text content.
type DocumentType string

const (
	DocTypeUnknown        DocumentType = ""
	DocTypeLegalInvoice   DocumentType = "legal_invoice"
	DocTypeVendorInvoice  DocumentType = "vendor_invoice"
	DocTypeReceipt        DocumentType = "receipt"
	DocTypeContract       DocumentType = "contract"
	DocTypeCourtFiling    DocumentType = "court_filing"
	DocTypeCorrespondence DocumentType = "correspondence"
)

// Billable reports whether the document type alone is a billing signal.
func (t DocumentType) Billable() bool {
	switch t {
	case DocTypeLegalInvoice, DocTypeVendorInvoice, DocTypeReceipt:
		return true
	}
	return false
}

// Extraction is the output of the extraction adapter for one record.
// All fields except Confidence are optional; a degraded extraction has
// Confidence 0 and everything else zero-valued.
type Extraction struct {
	DocumentType  DocumentType `json:"document_type,omitempty"`
	TotalAmount   float64      `json:"total_amount,omitempty"`
	HasAmount     bool         `json:"has_amount"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	Vendor        string       `json:"vendor,omitempty"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	Summary       string       `json:"summary,omitempty"`
	Confidence    float64      `json:"confidence"`
}

// BillingSignal reports whether the extraction justifies creating a
// billable event: an amount was found or the document classified as a
// billable type, with non-zero confidence.
func (e Extraction) BillingSignal() bool {
	if e.Confidence <= 0 {
		return false
	}
	return e.HasAmount || e.DocumentType.Billable()
}
