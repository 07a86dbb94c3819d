// Package resolve maps raw participant identifiers (emails, phone
// numbers, display names) onto canonical person nodes.
//
// Resolution is deliberately conservative: an exact normalized-email
// match wins, then an exact normalized-phone match, otherwise a new
// person is created. Records that refer to the same human through
// disjoint keys (one phone-only, one email-only) are NOT auto-merged;
// for billing evidence a wrong merge is worse than a missed one, so
// joining those is left to manual merge tooling.
package resolve

import (
	"context"
	"fmt"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Hints carries the raw identity material of one participant.
type Hints struct {
	Email       string
	Phone       string
	DisplayName string
	Roles       []billing.PersonRole
}

// PersonRef identifies a resolved person node.
type PersonRef struct {
	ID      string
	Created bool
}

// Resolve finds or creates the person node for hints inside the given
// transaction. At least one of email or phone must normalize to a
// non-empty key.
func Resolve(ctx context.Context, tx store.Tx, hints Hints) (PersonRef, error) {
	email := billing.NormalizeEmail(hints.Email)
	phone := billing.NormalizePhone(hints.Phone)

	if email == "" && phone == "" {
		return PersonRef{}, fmt.Errorf("participant has no identity key (email or phone required)")
	}

	if email != "" {
		person, err := tx.GetPersonByEmail(ctx, email)
		if err != nil {
			return PersonRef{}, fmt.Errorf("failed to look up person by email: %w", err)
		}
		if person != nil {
			return found(ctx, tx, person, hints)
		}
	}

	if phone != "" {
		person, err := tx.GetPersonByPhone(ctx, phone)
		if err != nil {
			return PersonRef{}, fmt.Errorf("failed to look up person by phone: %w", err)
		}
		if person != nil {
			return found(ctx, tx, person, hints)
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return PersonRef{}, err
	}
	person := billing.Person{
		ID:          id,
		Email:       email,
		Phone:       phone,
		DisplayName: hints.DisplayName,
		Roles:       hints.Roles,
	}
	if err := tx.CreatePerson(ctx, person); err != nil {
		return PersonRef{}, fmt.Errorf("failed to create person: %w", err)
	}
	return PersonRef{ID: id, Created: true}, nil
}

func found(ctx context.Context, tx store.Tx, person *billing.Person, hints Hints) (PersonRef, error) {
	if len(hints.Roles) > 0 {
		if err := tx.AppendPersonRoles(ctx, person.ID, hints.Roles); err != nil {
			return PersonRef{}, fmt.Errorf("failed to append person roles: %w", err)
		}
	}
	return PersonRef{ID: person.ID}, nil
}
