package offermart

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9876543210", "9876543210", true},
		{"+91 98765 43210", "9876543210", true},
		{"my number is 98765-43210", "9876543210", true},
		{"call me", "", false},
		{"12345", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizePhone(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizePhone(%q) = %q, %v, want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestStaticStoreLookup(t *testing.T) {
	t.Parallel()

	store := NewStaticStore(SeedOffers())
	ctx := context.Background()

	offer, err := store.Lookup(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	if offer.Name != "Rahul Sharma" || offer.PreapprovedLimit != 500000 {
		t.Fatalf("Lookup returned %+v", offer)
	}

	// Formatting noise is normalized away before the lookup.
	offer, err = store.Lookup(ctx, "+91 98765 43211")
	if err != nil {
		t.Fatalf("Lookup with formatting error = %v", err)
	}
	if offer.CustomerID != "CUST002" {
		t.Fatalf("Lookup returned %s, want CUST002", offer.CustomerID)
	}

	_, err = store.Lookup(ctx, "9999999999")
	if !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("Lookup(unknown) error = %v, want ErrOfferNotFound", err)
	}
}
