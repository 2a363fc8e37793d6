package sqlitedb

import (
	"context"
	"testing"
	"time"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.Get(&fk, "PRAGMA foreign_keys"); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign keys on, got %d", fk)
	}
}

func TestTimeRoundTripPreservesOrder(t *testing.T) {
	a := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	b := a.Add(1500 * time.Millisecond)
	fa, fb := FormatTime(a), FormatTime(b)
	if !(fa < fb) {
		t.Fatalf("expected %q < %q", fa, fb)
	}
	parsed, err := ParseTime(fb)
	if err != nil {
		t.Fatalf("ParseTime error: %v", err)
	}
	if !parsed.Equal(b) {
		t.Fatalf("expected %s, got %s", b, parsed)
	}
}
