package analysis

import (
	"reflect"
	"testing"
)

func TestFormatTopicName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   string
		want string
	}{
		{"mental_health", "Mental Health"},
		{"work", "Work"},
		{"custom_guitar", "Guitar"},
		{"custom_long_walks", "Long Walks"},
		{"  school  ", "School"},
		{"__odd__id__", "Odd Id"},
		{"", ""},
		{"custom_", ""},
	}
	for _, tc := range cases {
		if got := FormatTopicName(tc.id); got != tc.want {
			t.Fatalf("FormatTopicName(%q)=%q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestDedupeStrings(t *testing.T) {
	t.Parallel()

	in := []string{" Work ", "work", "", "Family", "WORK", "family "}
	want := []string{"Work", "Family"}
	if got := dedupeStrings(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("dedupeStrings=%v, want %v", got, want)
	}

	if got := dedupeStrings(nil); got != nil {
		t.Fatalf("dedupeStrings(nil)=%v, want nil", got)
	}
	if got := dedupeStrings([]string{" ", ""}); len(got) != 0 {
		t.Fatalf("dedupeStrings(blank)=%v, want empty", got)
	}
}

func TestLimitStrings(t *testing.T) {
	t.Parallel()

	in := []string{"a", "b", "c"}
	if got := limitStrings(in, 2); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("limitStrings(2)=%v, want [a b]", got)
	}
	if got := limitStrings(in, 0); !reflect.DeepEqual(got, in) {
		t.Fatalf("limitStrings(0)=%v, want unchanged", got)
	}
	if got := limitStrings(in, 5); !reflect.DeepEqual(got, in) {
		t.Fatalf("limitStrings(5)=%v, want unchanged", got)
	}
}
