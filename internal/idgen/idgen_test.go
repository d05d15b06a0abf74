package idgen

import (
	"regexp"
	"sort"
	"testing"
	"time"
)

func TestNew_Length(t *testing.T) {
	id, err := New(time.Now())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if len(id) != Length {
		t.Errorf("New() length = %d, want %d (id=%q)", len(id), Length, id)
	}
}

func TestNew_Charset(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
	for i := 0; i < 100; i++ {
		id, err := New(time.Now())
		if err != nil {
			t.Fatalf("New() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("New() = %q, does not match expected charset pattern", id)
		}
	}
}

func TestNew_Uniqueness(t *testing.T) {
	const count = 10_000
	now := time.Now()
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := New(now)
		if err != nil {
			t.Fatalf("New() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNew_SortsByTime(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	var ids []string
	for i := 0; i < 50; i++ {
		id, err := New(base.Add(time.Duration(i) * time.Millisecond))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		ids = append(ids, id)
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("IDs from increasing timestamps are not sorted: %v", ids)
	}
}

func TestTime_RoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1, 1_000_000, 1_700_000_000_123} {
		id, err := New(time.UnixMilli(ms))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		got, err := Time(id)
		if err != nil {
			t.Fatalf("Time(%q) error: %v", id, err)
		}
		if got != ms {
			t.Errorf("Time(%q) = %d, want %d", id, got, ms)
		}
	}
}

func TestTime_Invalid(t *testing.T) {
	if _, err := Time("short"); err == nil {
		t.Error("expected error for short id")
	}
	if _, err := Time("UUUUUUUUUUAAAAAAAAAAAAAAAA"); err == nil {
		t.Error("expected error for id with excluded character U")
	}
}
