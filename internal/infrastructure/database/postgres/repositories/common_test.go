package repositories

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolationConstraint(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       bool
		constraint string
	}{
		{"lib/pq", &pq.Error{Code: "23505", Constraint: "report_content_hash_key"}, true, "report_content_hash_key"},
		{"pgx", &pgconn.PgError{Code: "23505", ConstraintName: "medication_name_key"}, true, "medication_name_key"},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true, ""},
		{"foreign key", &pq.Error{Code: "23503"}, false, ""},
		{"plain", stderrors.New("boom"), false, ""},
		{"nil", nil, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constraint, ok := uniqueViolationConstraint(tt.err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.constraint, constraint)
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "Vitamin", escapeLike("Vitamin"))
	assert.Equal(t, `50\% \_x \\`, escapeLike(`50% _x \`))
}

func TestNullStringRoundTrip(t *testing.T) {
	assert.False(t, nullString(nil).Valid)
	s := "500mg"
	ns := nullString(&s)
	assert.True(t, ns.Valid)
	got := stringPtr(ns)
	assert.Equal(t, "500mg", *got)
	assert.NotSame(t, &s, got)
	assert.Nil(t, stringPtr(nullString(nil)))
}
