package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

var t0 = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

func TestIsExclusionViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection reset"), false},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"exclusion violation", &pq.Error{Code: "23P01", Constraint: "reservations_no_overlap"}, true},
		{"wrapped exclusion violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23P01"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isExclusionViolation(tt.err); got != tt.want {
				t.Errorf("isExclusionViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOverlapFromConstraintIgnoresOtherErrors(t *testing.T) {
	db := &DB{}

	err := db.overlapFromConstraint(errors.New("deadlock detected"), 1, t0, t0, t0, 0)
	if err != nil {
		t.Errorf("unrelated error mapped to overlap: %v", err)
	}
	if err := db.overlapFromConstraint(nil, 1, t0, t0, t0, 0); err != nil {
		t.Errorf("nil error mapped to overlap: %v", err)
	}
}
