package queue

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test")
	t.Cleanup(func() { s.Close() })
	return s
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var stores = map[string]func(*testing.T) Store{
	"redis":  newRedisStore,
	"sqlite": newSQLiteStore,
}

func TestStoreArrayOps(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			if err := s.ArrayUnion(ctx, Todo, "tick", "ACME", "XYZ", "MSFT"); err != nil {
				t.Fatalf("ArrayUnion: %v", err)
			}
			// Re-adding is a no-op and must not reorder.
			if err := s.ArrayUnion(ctx, Todo, "tick", "ACME"); err != nil {
				t.Fatalf("ArrayUnion: %v", err)
			}
			if err := s.ArrayUnion(ctx, Todo, "1s", "SPY"); err != nil {
				t.Fatalf("ArrayUnion: %v", err)
			}

			doc, err := s.Read(ctx, Todo)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if want := []string{"ACME", "XYZ", "MSFT"}; !slices.Equal(doc["tick"], want) {
				t.Errorf("tick = %v, want %v", doc["tick"], want)
			}
			if !slices.Equal(doc["1s"], []string{"SPY"}) {
				t.Errorf("1s = %v, want [SPY]", doc["1s"])
			}

			if err := s.ArrayRemove(ctx, Todo, "tick", "XYZ", "NOPE"); err != nil {
				t.Fatalf("ArrayRemove: %v", err)
			}
			doc, err = s.Read(ctx, Todo)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if want := []string{"ACME", "MSFT"}; !slices.Equal(doc["tick"], want) {
				t.Errorf("after remove tick = %v, want %v", doc["tick"], want)
			}

			other, err := s.Read(ctx, Maintain)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(other) != 0 {
				t.Errorf("maintain = %v, want empty", other)
			}
		})
	}
}

func TestClientFields(t *testing.T) {
	c := NewClient(newSQLiteStore(t), Worker{User: "research", Account: "DU1", Resolution: "tick"})
	if got := c.Field(Doing); got != "research.DU1.tick" {
		t.Errorf("Field(doing) = %q", got)
	}
	if got := c.Field(Maintain); got != "tick" {
		t.Errorf("Field(maintain) = %q", got)
	}
	if _, err := ParseDocument("bad_contract"); err != nil {
		t.Errorf("ParseDocument: %v", err)
	}
	if _, err := ParseDocument("done"); err == nil {
		t.Error("ParseDocument(done) should fail")
	}
}
