package gateway

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	m.Add("alice", NewPaperAdapter(newPaperEngine(t)))
	m.Add("bob", Unsupported(VenueBybit))

	if got := m.List(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("List = %v", got)
	}

	a, err := m.Get("alice")
	if err != nil || a.Venue() != VenuePaper {
		t.Fatalf("Get(alice) = %v, %v", a, err)
	}
	if _, err := m.Get("ghost"); !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("Get(ghost) err = %v, want ErrUnknownAdapter", err)
	}

	if err := m.Remove("bob"); err != nil {
		t.Fatalf("Remove(bob): %v", err)
	}
	if err := m.Remove("bob"); !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("second Remove err = %v, want ErrUnknownAdapter", err)
	}
	if got := m.List(); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("List after remove = %v", got)
	}
}

func TestManagerTestAll(t *testing.T) {
	m := NewManager()
	m.Add("alice", NewPaperAdapter(newPaperEngine(t)))
	m.Add("bob", Unsupported(VenueForex))

	results := m.TestAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %v", results)
	}
	if results["alice"] != nil {
		t.Fatalf("alice err = %v, want nil", results["alice"])
	}
	if !errors.Is(results["bob"], ErrUnsupportedVenue) {
		t.Fatalf("bob err = %v, want ErrUnsupportedVenue", results["bob"])
	}
}

func TestManagerBalances(t *testing.T) {
	m := NewManager()
	m.Add("alice", NewPaperAdapter(newPaperEngine(t)))
	m.Add("bob", Unsupported(VenueStocks))

	balances, failures := m.Balances(context.Background())
	if len(balances) != 1 || balances["alice"] != 10000 {
		t.Fatalf("balances = %v", balances)
	}
	if !errors.Is(failures["bob"], ErrUnsupportedVenue) {
		t.Fatalf("failures = %v", failures)
	}
}
