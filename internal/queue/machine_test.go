package queue

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func newMachine(t *testing.T, s Store, user string) (*StateMachine, *Client, *[]Transition) {
	t.Helper()
	var seen []Transition
	c := NewClient(s, Worker{User: user, Account: "acct", Resolution: "tick"})
	m := NewStateMachine(c, WithObserver(func(tr Transition) { seen = append(seen, tr) }))
	return m, c, &seen
}

func mustList(t *testing.T, c *Client, doc Document) []string {
	t.Helper()
	got, err := c.List(context.Background(), doc)
	if err != nil {
		t.Fatalf("List(%s): %v", doc, err)
	}
	return got
}

func TestClaimCompleteReject(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, c, seen := newMachine(t, newStore(t), "alice")

			if err := c.Add(ctx, Todo, "ACME", "XYZ"); err != nil {
				t.Fatalf("seed: %v", err)
			}

			ticker, resumed, err := m.Claim(ctx)
			if err != nil || ticker != "ACME" || resumed {
				t.Fatalf("Claim = %q, %v, %v; want ACME, false, nil", ticker, resumed, err)
			}
			if got := mustList(t, c, Doing); !slices.Equal(got, []string{"ACME"}) {
				t.Errorf("doing = %v", got)
			}
			if got := mustList(t, c, Todo); !slices.Equal(got, []string{"XYZ"}) {
				t.Errorf("todo = %v", got)
			}

			// A second claim resumes the slot instead of taking XYZ.
			ticker, resumed, err = m.Claim(ctx)
			if err != nil || ticker != "ACME" || !resumed {
				t.Fatalf("second Claim = %q, %v, %v; want ACME resumed", ticker, resumed, err)
			}

			if err := m.Complete(ctx, "ACME"); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if got := mustList(t, c, Maintain); !slices.Equal(got, []string{"ACME"}) {
				t.Errorf("maintain = %v", got)
			}

			ticker, _, err = m.Claim(ctx)
			if err != nil || ticker != "XYZ" {
				t.Fatalf("Claim = %q, %v; want XYZ", ticker, err)
			}
			if err := m.Reject(ctx, "XYZ"); err != nil {
				t.Fatalf("Reject: %v", err)
			}
			if got := mustList(t, c, BadContract); !slices.Equal(got, []string{"XYZ"}) {
				t.Errorf("bad_contract = %v", got)
			}

			if _, _, err := m.Claim(ctx); !errors.Is(err, ErrEmpty) {
				t.Errorf("Claim on empty queue = %v, want ErrEmpty", err)
			}
			pending, err := m.Pending(ctx)
			if err != nil || pending {
				t.Errorf("Pending = %v, %v; want false", pending, err)
			}

			want := []Transition{
				{"ACME", Todo, Doing}, {"ACME", Doing, Maintain},
				{"XYZ", Todo, Doing}, {"XYZ", Doing, BadContract},
			}
			if !slices.Equal(*seen, want) {
				t.Errorf("transitions = %v, want %v", *seen, want)
			}
		})
	}
}

func TestSlotsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	alice, ac, _ := newMachine(t, s, "alice")
	bob, _, _ := newMachine(t, s, "bob")

	if err := ac.Add(ctx, Todo, "ACME", "XYZ"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	a, _, err := alice.Claim(ctx)
	if err != nil {
		t.Fatalf("alice Claim: %v", err)
	}
	b, _, err := bob.Claim(ctx)
	if err != nil {
		t.Fatalf("bob Claim: %v", err)
	}
	if a == b {
		t.Errorf("both workers claimed %s", a)
	}
}

func TestReconcile(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, c, _ := newMachine(t, newStore(t), "alice")

			// Crash after "add to doing" but before "remove from todo".
			if err := c.Add(ctx, Todo, "ACME", "XYZ"); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if err := c.Add(ctx, Doing, "ACME"); err != nil {
				t.Fatalf("seed: %v", err)
			}

			repaired, err := m.Reconcile(ctx)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if !slices.Equal(repaired, []string{"ACME"}) {
				t.Errorf("repaired = %v, want [ACME]", repaired)
			}
			if got := mustList(t, c, Todo); !slices.Equal(got, []string{"XYZ"}) {
				t.Errorf("todo = %v, want [XYZ]", got)
			}
			if got := mustList(t, c, Doing); !slices.Equal(got, []string{"ACME"}) {
				t.Errorf("doing = %v, want [ACME]", got)
			}

			// Crash after "add to maintain" but before "remove from doing".
			if err := c.Add(ctx, Maintain, "ACME"); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if _, err := m.Reconcile(ctx); err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if got := mustList(t, c, Doing); len(got) != 0 {
				t.Errorf("doing = %v, want empty", got)
			}

			// Nothing left to repair.
			repaired, err = m.Reconcile(ctx)
			if err != nil || len(repaired) != 0 {
				t.Errorf("Reconcile on clean state = %v, %v", repaired, err)
			}
		})
	}
}

func TestRequeueGoesToBack(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, c, _ := newMachine(t, newStore(t), "alice")
			if err := c.Add(ctx, Todo, "ACME", "XYZ"); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if _, _, err := m.Claim(ctx); err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if err := m.Requeue(ctx, "ACME"); err != nil {
				t.Fatalf("Requeue: %v", err)
			}
			if got := mustList(t, c, Todo); !slices.Equal(got, []string{"XYZ", "ACME"}) {
				t.Errorf("todo = %v, want [XYZ ACME]", got)
			}
			if got := mustList(t, c, Doing); len(got) != 0 {
				t.Errorf("doing = %v, want empty", got)
			}
		})
	}
}
