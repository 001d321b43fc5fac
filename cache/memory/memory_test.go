package memory

import (
	"context"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
	if string(got) != "v1" {
		t.Fatalf("value = %q", got)
	}

	_, ok, err = c.Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}

func TestAddOnlyWhenAbsent(t *testing.T) {
	c := New()
	ctx := context.Background()

	stored, err := c.Add(ctx, "k", []byte("first"), 0)
	if err != nil || !stored {
		t.Fatalf("first Add = %v, %v", stored, err)
	}
	stored, err = c.Add(ctx, "k", []byte("second"), 0)
	if err != nil || stored {
		t.Fatalf("second Add = %v, %v, want not stored", stored, err)
	}
	got, _, _ := c.Get(ctx, "k")
	if string(got) != "first" {
		t.Fatalf("Add clobbered existing value: %q", got)
	}
}

func TestCompareAndSwap(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v1"), 0)

	_, token, ok, err := c.GetWithToken(ctx, "k")
	if err != nil || !ok {
		t.Fatal("GetWithToken after Set should hit")
	}

	swapped, err := c.CompareAndSwap(ctx, "k", []byte("v2"), token, 0)
	if err != nil || !swapped {
		t.Fatalf("CAS with fresh token = %v, %v", swapped, err)
	}

	// the first token is now stale
	swapped, err = c.CompareAndSwap(ctx, "k", []byte("v3"), token, 0)
	if err != nil || swapped {
		t.Fatalf("CAS with stale token = %v, %v, want rejected", swapped, err)
	}
	got, _, _ := c.Get(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("value = %q, want v2", got)
	}
}

func TestCompareAndSwapMissingKey(t *testing.T) {
	c := New()
	swapped, err := c.CompareAndSwap(context.Background(), "gone", []byte("v"), 0, 0)
	if err != nil || swapped {
		t.Fatalf("CAS on missing key = %v, %v", swapped, err)
	}
}

func TestTokensSurviveDelete(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v1"), 0)
	_, stale, _, _ := c.GetWithToken(ctx, "k")

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	c.Set(ctx, "k", []byte("v2"), 0)

	// a token issued before the delete must not match the new incarnation
	swapped, err := c.CompareAndSwap(ctx, "k", []byte("hijack"), stale, 0)
	if err != nil || swapped {
		t.Fatalf("stale pre-delete token accepted: %v, %v", swapped, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry should be live before the TTL")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestFlush(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	_, stale, _, _ := c.GetWithToken(ctx, "a")

	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatal("flush left an entry behind")
	}

	c.Set(ctx, "a", []byte("3"), 0)
	if swapped, _ := c.CompareAndSwap(ctx, "a", []byte("x"), stale, 0); swapped {
		t.Fatal("pre-flush token accepted after flush")
	}
}
