package catalog

import (
	"testing"
	"time"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
)

func openDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureIdempotent(t *testing.T) {
	db := openDB(t)
	m1, err := Ensure(db, "orders")
	if err != nil {
		t.Fatalf("ensure1: %v", err)
	}
	m2, err := Ensure(db, "orders")
	if err != nil {
		t.Fatalf("ensure2: %v", err)
	}
	if m1.Name != m2.Name || m1.CreatedAtMs != m2.CreatedAtMs {
		t.Fatalf("not idempotent: %+v vs %+v", m1, m2)
	}
	if m1.HasPolicy() {
		t.Fatalf("new log should have no retention policy")
	}
}

func TestSetRetentionPersists(t *testing.T) {
	db := openDB(t)
	if _, err := Ensure(db, "orders"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := SetRetention(db, "orders", 2*time.Hour, 1<<20); err != nil {
		t.Fatalf("set retention: %v", err)
	}
	m, ok, err := Get(db, "orders")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if m.Retention() != 2*time.Hour || m.MaxBytes != 1<<20 || !m.HasPolicy() {
		t.Fatalf("unexpected meta %+v", m)
	}
	// Ensure keeps the stored policy
	again, _ := Ensure(db, "orders")
	if again.MaxBytes != 1<<20 {
		t.Fatalf("ensure overwrote policy: %+v", again)
	}
}

func TestGetMissing(t *testing.T) {
	db := openDB(t)
	if _, ok, err := Get(db, "nope"); ok || err != nil {
		t.Fatalf("want missing, got %v %v", ok, err)
	}
}

func TestListSortedAndScoped(t *testing.T) {
	db := openDB(t)
	for _, n := range []string{"b", "a", "c"} {
		if _, err := Ensure(db, n); err != nil {
			t.Fatalf("ensure %s: %v", n, err)
		}
	}
	// keys outside the catalog prefix are ignored
	if err := db.Set([]byte("catalog0"), []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Set([]byte("log/a/m"), []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := List(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].Name != "a" || got[1].Name != "b" || got[2].Name != "c" {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestPutRejectsEmptyName(t *testing.T) {
	if err := Put(openDB(t), Meta{}); err == nil {
		t.Fatalf("expected error")
	}
}
