package connector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestSyncErrorWrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := Transient("postgres.upsert", base)

	if !errors.Is(err, base) {
		t.Error("expected the wrapped error to be reachable via errors.Is")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("KindOf = %s, want transient", KindOf(err))
	}

	wrapped := fmt.Errorf("run failed: %w", err)
	if KindOf(wrapped) != KindTransient {
		t.Error("KindOf must see through further wrapping")
	}

	perm := Permanent("postgres.upsert", errors.New("null value in column"))
	if KindOf(perm) != KindPermanent {
		t.Errorf("KindOf = %s, want permanent", KindOf(perm))
	}
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	if KindOf(errors.New("something unexpected")) != KindTransient {
		t.Error("unclassified errors must stay retryable")
	}
}

func TestClassifyPg(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"connection failure", &pq.Error{Code: "08006"}, KindTransient},
		{"too many connections", &pq.Error{Code: "53300"}, KindTransient},
		{"serialization failure", &pq.Error{Code: "40001"}, KindTransient},
		{"deadlock", &pq.Error{Code: "40P01"}, KindTransient},
		{"admin shutdown", &pq.Error{Code: "57P01"}, KindTransient},
		{"unique violation", &pq.Error{Code: "23505"}, KindPermanent},
		{"not null violation", &pq.Error{Code: "23502"}, KindPermanent},
		{"invalid text representation", &pq.Error{Code: "22P02"}, KindPermanent},
		{"undefined table", &pq.Error{Code: "42P01"}, KindPermanent},
		{"context cancelled", context.Canceled, KindTransient},
		{"plain driver error", errors.New("driver: bad connection"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPg("postgres.upsert", tt.err)
			if got.Kind != tt.want {
				t.Errorf("classifyPg(%v).Kind = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error must wrap the original")
			}
		})
	}
}
