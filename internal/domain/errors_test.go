package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassPredicates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{name: "validation", err: Invalid("amount", "must be positive"), pred: IsValidation},
		{name: "not found", err: NotFound("rule", "r1"), pred: IsNotFound},
		{name: "conflict", err: Conflict("occurrence", "o1", StatusPaid), pred: IsConflict},
		{name: "transient", err: Transient("rules.insert", errors.New("locked")), pred: IsTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.err) {
				t.Fatalf("predicate rejected %v", tt.err)
			}
			// Classes are disjoint.
			count := 0
			for _, p := range []func(error) bool{IsValidation, IsNotFound, IsConflict, IsTransient} {
				if p(tt.err) {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("error matched %d classes, want 1", count)
			}
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("acting on occurrence: %w", Conflict("occurrence", "o1", StatusSkipped))
	if !IsConflict(err) {
		t.Fatal("IsConflict should match a wrapped ConflictError")
	}
	if IsNotFound(err) {
		t.Fatal("IsNotFound should not match a ConflictError")
	}
}

func TestTransientNilStaysNil(t *testing.T) {
	t.Parallel()
	if err := Transient("op", nil); err != nil {
		t.Fatalf("Transient(nil) = %v, want nil", err)
	}
}

func TestTransientUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("database is locked")
	err := Transient("occurrences.update", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Transient should unwrap to its cause")
	}
}
