package directory

import (
	"context"
	"testing"
	"time"
)

type fakeDir struct {
	lookups int
	ids     map[string]string
}

func (f *fakeDir) LookupByEmail(_ context.Context, email string) (string, error) {
	f.lookups++
	id, ok := f.ids[email]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (f *fakeDir) Send(context.Context, string, string) error { return nil }

func TestCachedLookupHit(t *testing.T) {
	t.Parallel()
	inner := &fakeDir{ids: map[string]string{"a@x.test": "U1"}}
	c := NewCached(inner, time.Minute, 10)

	for i := 0; i < 3; i++ {
		id, err := c.LookupByEmail(context.Background(), "a@x.test")
		if err != nil {
			t.Fatalf("lookup error: %v", err)
		}
		if id != "U1" {
			t.Fatalf("id = %q, want U1", id)
		}
	}
	if inner.lookups != 1 {
		t.Fatalf("upstream lookups = %d, want 1", inner.lookups)
	}
}

func TestCachedMissNotCached(t *testing.T) {
	t.Parallel()
	inner := &fakeDir{ids: map[string]string{}}
	c := NewCached(inner, time.Minute, 10)

	for i := 0; i < 2; i++ {
		if _, err := c.LookupByEmail(context.Background(), "gone@x.test"); !IsNotFound(err) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if inner.lookups != 2 {
		t.Fatalf("upstream lookups = %d, want 2 (misses must not be cached)", inner.lookups)
	}
}

func TestCachedExpiry(t *testing.T) {
	t.Parallel()
	inner := &fakeDir{ids: map[string]string{"a@x.test": "U1"}}
	c := NewCached(inner, time.Minute, 10)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if _, err := c.LookupByEmail(context.Background(), "a@x.test"); err != nil {
		t.Fatalf("lookup error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.LookupByEmail(context.Background(), "a@x.test"); err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if inner.lookups != 2 {
		t.Fatalf("upstream lookups = %d, want 2 after expiry", inner.lookups)
	}

	if n := c.Prune(); n != 0 {
		// The refreshed entry is still live.
		t.Fatalf("pruned %d entries, want 0", n)
	}
	now = now.Add(2 * time.Minute)
	if n := c.Prune(); n != 1 {
		t.Fatalf("pruned %d entries, want 1", n)
	}
}
