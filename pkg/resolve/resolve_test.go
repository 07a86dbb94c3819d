package resolve

import (
	"context"
	"testing"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/store"
	"github.com/trestle-legal/docket/pkg/store/memory"
)

func inTx(t *testing.T, st *memory.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := st.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestResolveCreatesThenReuses(t *testing.T) {
	st := memory.New()

	var first, second PersonRef
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		first, err = Resolve(ctx, tx, Hints{Email: "JDoe@Firm.com", DisplayName: "Jane Doe"})
		if err != nil {
			return err
		}
		second, err = Resolve(ctx, tx, Hints{Email: "jdoe@firm.com"})
		return err
	})

	if !first.Created {
		t.Error("first resolve should create the person")
	}
	if second.Created {
		t.Error("second resolve should reuse the person")
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %q vs %q", first.ID, second.ID)
	}
}

func TestResolveByPhone(t *testing.T) {
	st := memory.New()

	var first, second PersonRef
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		first, err = Resolve(ctx, tx, Hints{Phone: "+1 (555) 010-2000"})
		if err != nil {
			return err
		}
		second, err = Resolve(ctx, tx, Hints{Phone: "15550102000", Email: ""})
		return err
	})

	// Different raw spellings of the same number must not fork the node,
	// but a number without the international prefix is a distinct key.
	if first.ID == second.ID {
		t.Error("prefixed and unprefixed numbers should not resolve to one person")
	}

	var third PersonRef
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		third, err = Resolve(ctx, tx, Hints{Phone: "+1 555 010 2000"})
		return err
	})
	if third.ID != first.ID {
		t.Error("same normalized number should resolve to the same person")
	}
}

func TestResolveEmailWinsOverPhone(t *testing.T) {
	st := memory.New()

	var byEmail, byBoth PersonRef
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		byEmail, err = Resolve(ctx, tx, Hints{Email: "jdoe@firm.com"})
		if err != nil {
			return err
		}
		byBoth, err = Resolve(ctx, tx, Hints{Email: "jdoe@firm.com", Phone: "+15550102000"})
		return err
	})

	if byBoth.ID != byEmail.ID {
		t.Error("email match should win before phone lookup")
	}
}

func TestResolveAppendsRoles(t *testing.T) {
	st := memory.New()

	var ref PersonRef
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		ref, err = Resolve(ctx, tx, Hints{Email: "v@vendor.com", Roles: []billing.PersonRole{billing.RoleVendor}})
		if err != nil {
			return err
		}
		_, err = Resolve(ctx, tx, Hints{Email: "v@vendor.com", Roles: []billing.PersonRole{billing.RoleVendor, billing.RoleClient}})
		return err
	})

	var person *billing.Person
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		person, err = tx.GetPersonByEmail(ctx, "v@vendor.com")
		return err
	})
	if person == nil {
		t.Fatal("person not found")
	}
	if person.ID != ref.ID {
		t.Errorf("id = %q, want %q", person.ID, ref.ID)
	}
	if len(person.Roles) != 2 {
		t.Fatalf("roles = %v, want vendor and client without duplicates", person.Roles)
	}
}

func TestResolveRequiresIdentity(t *testing.T) {
	st := memory.New()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := Resolve(ctx, tx, Hints{DisplayName: "Unknown Caller"})
		return err
	})
	if err == nil {
		t.Fatal("expected error for a participant without email or phone")
	}
}
