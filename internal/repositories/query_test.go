package repositories

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func TestWhereBuilderNumbersArguments(t *testing.T) {
	var w whereBuilder
	party := uuid.New()
	w.add("(landlord_user_id = $%[1]d OR tenant_user_id = $%[1]d)", party)
	w.add("status = ANY($%d)", []string{"a", "b"})

	require.Equal(t, " WHERE (landlord_user_id = $1 OR tenant_user_id = $1) AND status = ANY($2)", w.where())
	require.Equal(t, " LIMIT $3 OFFSET $4", w.page(20, 40))
	require.Len(t, w.args, 4)
	require.Equal(t, 20, w.args[2])
	require.Equal(t, 40, w.args[3])
}

func TestWhereBuilderPage(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantSQL    string
		wantLimit  any
		wantOffset any
	}{
		{"unbounded", 0, 10, "", nil, nil},
		{"capped", 500, 0, " LIMIT $1 OFFSET $2", MaxPageSize, 0},
		{"negative offset", 5, -3, " LIMIT $1 OFFSET $2", 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w whereBuilder
			require.Equal(t, "", w.where())
			require.Equal(t, tt.wantSQL, w.page(tt.limit, tt.offset))
			if tt.wantSQL == "" {
				require.Empty(t, w.args)
				return
			}
			require.Equal(t, []any{tt.wantLimit, tt.wantOffset}, w.args)
		})
	}
}

func TestNotFoundTranslation(t *testing.T) {
	require.ErrorIs(t, notFound(pgx.ErrNoRows), models.ErrNotFound)

	other := errors.New("boom")
	require.Equal(t, other, notFound(other))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("23505")))
	require.False(t, isUniqueViolation(nil))
}
