package records

import (
	"errors"
	"testing"
	"time"

	"schoolrecords/internal/apperrors"
)

func TestParseDay(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-06-10", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), true},
		{" 2024-06-10 ", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), true},
		{"2024-06-10T08:30:00Z", time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"10/06/2024", time.Time{}, false},
		{"2024-13-01", time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDay("dueDate", tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want) {
				t.Fatalf("%q: got %v, %v", tc.in, got, err)
			}
			continue
		}
		if !errors.Is(err, apperrors.ErrValidationFailed) || apperrors.FieldOf(err) != "dueDate" {
			t.Fatalf("%q: expected dueDate validation error, got %v", tc.in, err)
		}
	}
}
