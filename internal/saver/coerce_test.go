package saver

import "testing"

// TestGenderCoercesJapaneseStrings tests the documented 男/女/unknown mapping.
func TestGenderCoercesJapaneseStrings(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cases := map[string]int{"男": 1, "女": 2, "": 0, "unknown": 0}
	for in, want := range cases {
		if got := Gender(in); got != want {
			t.Errorf("Gender(%q) = %d, want %d", in, got, want)
		}
	}
}

// TestBirthdayCoercesYYYYMMDD tests the dash-insertion and the
// pass-through for malformed input.
func TestBirthdayCoercesYYYYMMDD(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := Birthday("19950614"); got != "1995-06-14" {
		t.Fatalf("got %q", got)
	}
	if got := Birthday("not-a-date"); got != "not-a-date" {
		t.Fatalf("expected malformed input unchanged, got %q", got)
	}
}

// TestTruncateLimitsRuneCount tests truncation counts runes, not bytes, so
// multi-byte Japanese text isn't split mid-character.
func TestTruncateLimitsRuneCount(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := Truncate("西岡拓朗(1着)", 6); got != "西岡拓朗(1" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 6); got != "abc" {
		t.Fatalf("expected short string unchanged, got %q", got)
	}
}

// TestJoinLabelsCommaJoins tests the stored representation of the
// order-irrelevant label set.
func TestJoinLabelsCommaJoins(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := JoinLabels([]string{"grade-a", "night"}); got != "grade-a,night" {
		t.Fatalf("got %q", got)
	}
}
