package rowsync

import "testing"

func TestCacheKeyFormat(t *testing.T) {
	got := cacheKey("app", "records", Keys("id", 42))
	if got != "V4app.records.id.42" {
		t.Fatalf("key = %q", got)
	}
}

func TestCacheKeyLowercasesFieldAndValue(t *testing.T) {
	got := cacheKey("app", "users", Keys("Email", "Bob@Example.COM"))
	if got != "V4app.users.email.bob@example.com" {
		t.Fatalf("key = %q", got)
	}
}

func TestCacheKeyCompositeOrderMatters(t *testing.T) {
	a := cacheKey("app", "grants", Keys("user_id", 1, "role", "admin"))
	b := cacheKey("app", "grants", Keys("role", "admin", "user_id", 1))
	if a == b {
		t.Fatal("key field order must be part of the key")
	}
	if a != "V4app.grants.user_id.1.role.admin" {
		t.Fatalf("key = %q", a)
	}
}

func TestMetadataKey(t *testing.T) {
	if got := metadataKey("app", "records"); got != "V4app.records.metadata" {
		t.Fatalf("key = %q", got)
	}
}

func TestKeysPanicsOnOddPairs(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("odd pair count must panic")
		}
	}()
	Keys("id")
}

func TestDeletionSentinel(t *testing.T) {
	if !isDeletionSentinel(deletionSentinel) {
		t.Fatal("sentinel must match itself")
	}
	if isDeletionSentinel([]byte(`{"id":1}`)) {
		t.Fatal("payload bytes must not look like the sentinel")
	}
	if isDeletionSentinel(nil) {
		t.Fatal("empty bytes must not look like the sentinel")
	}
}
