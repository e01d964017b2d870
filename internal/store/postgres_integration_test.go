//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := t.Context()
	p, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Migrate(ctx))

	r, err := p.Put(ctx, "it_records", model.Record{"district": "TEMA", "date": "2024-05-02"})
	require.NoError(t, err)
	defer func() { _ = p.Delete(ctx, "it_records", r.ID()) }()

	got, err := p.Query(ctx, "it_records", filter.Query{Where: []filter.Condition{
		filter.Equal("district", "TEMA"),
		{Field: "date", Op: filter.Prefix, Value: "2024-05"},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID(), got[0].ID())

	n, err := p.Count(ctx, "it_records", []filter.Condition{filter.Equal("district", "ACCRA EAST")})
	require.NoError(t, err)
	assert.Zero(t, n)
}
