package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

func TestSelectDocumentsSQL(t *testing.T) {
	q := filter.Query{
		Where: []filter.Condition{
			filter.OneOf("region", "ACCRA EAST REGION", "ACCRA WEST REGION"),
			filter.Equal("status", "open"),
			{Field: "occurrenceDate", Op: filter.Gte, Value: "2024-05-01"},
		},
		Sort:   filter.Sort{Field: "occurrenceDate", Desc: true},
		Offset: 20,
		Limit:  10,
	}
	sql, args, err := selectDocuments("op5_faults", q).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT body FROM documents WHERE collection = $1`+
			` AND body->>$2::text IN ($3,$4)`+
			` AND COALESCE(body->>$5::text, '') = $6`+
			` AND (body->>$7::text) COLLATE "C" >= $8`+
			` ORDER BY COALESCE(body->>$9::text, '') COLLATE "C" DESC, id ASC LIMIT 10 OFFSET 20`,
		sql)
	assert.Equal(t, []any{
		"op5_faults",
		"region", "ACCRA EAST REGION", "ACCRA WEST REGION",
		"status", "open",
		"occurrenceDate", "2024-05-01",
		"occurrenceDate",
	}, args)
}

func TestConditionKeepsInputOutOfSQL(t *testing.T) {
	hostile := "x' OR '1'='1"
	for _, c := range []filter.Condition{
		filter.Equal(hostile, hostile),
		{Field: hostile, Op: filter.Prefix, Value: hostile},
		{Fields: []string{hostile}, Op: filter.Contains, Value: hostile},
		filter.PrefixOfFirst(hostile, hostile, "createdAt"),
	} {
		sql, args, err := condition(c).ToSql()
		require.NoError(t, err)
		assert.NotContains(t, sql, hostile)
		assert.NotEmpty(t, args)
	}
}

func TestConditionEdgeCases(t *testing.T) {
	sql, args, err := condition(filter.Nothing()).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "FALSE", sql)
	assert.Empty(t, args)

	sql, _, err = condition(filter.OneOf("region")).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "FALSE", sql)

	_, args, err = condition(filter.Condition{Field: "feederName", Op: filter.Prefix, Value: "50%_off"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `50\%\_off%`, args[1])
}

func TestFirstPrefixSQL(t *testing.T) {
	sql, args, err := condition(filter.PrefixOfFirst("2024-05", "date", "inspectionDate", "createdAt")).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `COALESCE(NULLIF(body->>?::text, ''),NULLIF(body->>?::text, ''),NULLIF(body->>?::text, '')) LIKE ?`, sql)
	assert.Equal(t, []any{"date", "inspectionDate", "createdAt", "2024-05%"}, args)

	sql, _, err = condition(filter.PrefixOfFirst("2024-05")).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "FALSE", sql)
}

func TestCountDocumentsSQL(t *testing.T) {
	sql, args, err := countDocuments("vit_inspections", []filter.Condition{filter.Equal("district", "TEMA")}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM documents WHERE collection = $1 AND COALESCE(body->>$2::text, '') = $3`, sql)
	assert.Equal(t, []any{"vit_inspections", "district", "TEMA"}, args)
}

func TestUpsertDocument(t *testing.T) {
	r, sql, args, err := upsertDocument("targets", model.Record{"targetValue": 100.0})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID())
	assert.Contains(t, sql, "ON CONFLICT (collection, id) DO UPDATE")
	require.Len(t, args, 3)
	assert.Equal(t, r.ID(), args[1])

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(args[2].(string)), &body))
	assert.Equal(t, r.ID(), body["id"])
}
