package billing

import (
	"testing"
)

func TestEventStatusTransitions(t *testing.T) {
	tests := []struct {
		from EventStatus
		to   EventStatus
		want bool
	}{
		{EventDraft, EventApproved, true},
		{EventDraft, EventRejected, true},
		{EventDraft, EventDraft, false},
		{EventApproved, EventRejected, false},
		{EventApproved, EventDraft, false},
		{EventRejected, EventApproved, false},
		{EventRejected, EventDraft, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEventStatusTerminal(t *testing.T) {
	if EventDraft.Terminal() {
		t.Error("draft must not be terminal")
	}
	if !EventApproved.Terminal() {
		t.Error("approved must be terminal")
	}
	if !EventRejected.Terminal() {
		t.Error("rejected must be terminal")
	}
}

func TestRecordKindValid(t *testing.T) {
	for _, kind := range []RecordKind{KindEmail, KindPhoneCall, KindDocument} {
		if !kind.Valid() {
			t.Errorf("%s should be valid", kind)
		}
	}
	if RecordKind("fax").Valid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JDoe@Firm.com", "jdoe@firm.com"},
		{"  jdoe@firm.com  ", "jdoe@firm.com"},
		{"Jane Doe <Jane@Firm.com>", "jane@firm.com"},
		{"<jane@firm.com>", "jane@firm.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 010-2000", "+15550102000"},
		{"555.010.2000", "5550102000"},
		{"+", ""},
		{"ext", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeOrgName(t *testing.T) {
	if got := NormalizeOrgName("  Meridian   Court Reporting  "); got != "meridian court reporting" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeCaseNumber(t *testing.T) {
	if got := NormalizeCaseNumber(" cv-2025-123 "); got != "CV-2025-123" {
		t.Errorf("got %q", got)
	}
}

func TestPersonHasIdentity(t *testing.T) {
	if (Person{DisplayName: "Jane"}).HasIdentity() {
		t.Error("display name alone is not an identity")
	}
	if !(Person{Email: "jane@firm.com"}).HasIdentity() {
		t.Error("email is an identity")
	}
	if !(Person{Phone: "+15550102000"}).HasIdentity() {
		t.Error("phone is an identity")
	}
}
