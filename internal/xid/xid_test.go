package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^WQ\d{8}[0-9A-F]{6}$`)

func TestNewPrefixesAndIsUnique(t *testing.T) {
	a := New("order")
	b := New("order")
	if !strings.HasPrefix(a, "order-") {
		t.Fatalf("expected order- prefix, got %s", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
}

func TestOrderNumberFormat(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	number := OrderNumber(at)
	if !orderNumberPattern.MatchString(number) {
		t.Fatalf("unexpected order number format: %s", number)
	}
	if !strings.HasPrefix(number, "WQ20250309") {
		t.Fatalf("expected date prefix WQ20250309, got %s", number)
	}
}
