package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

const tableDocuments = "documents"

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres keeps every collection in one JSONB documents table.
type Postgres struct {
	db *sql.DB
}

// ConnectTimeout bounds how long NewPostgres keeps retrying the first ping.
var ConnectTimeout = 30 * time.Second

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = ConnectTimeout
	err = backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			logger.Warnf(ctx, "postgres not ready, retrying in %s: %v", next, err)
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. They are
// idempotent, so running them on every start is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		body, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Name(), err)
		}
		logger.Infof(ctx, "applied migration %s", e.Name())
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, collection string, q filter.Query) ([]model.Record, error) {
	query, args, err := selectDocuments(collection, q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(collection, "query", err)
	}
	defer rows.Close()
	out := []model.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fail(collection, "query", err)
		}
		var r model.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fail(collection, "query", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(collection, "query", err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context, collection string, where []filter.Condition) (int, error) {
	query, args, err := countDocuments(collection, where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fail(collection, "count", err)
	}
	return n, nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (model.Record, error) {
	query, args, err := builder().Select("body").From(tableDocuments).
		Where(squirrel.Eq{"collection": collection, "id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fail(collection, "get", err)
	}
	var r model.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fail(collection, "get", err)
	}
	return r, nil
}

func (p *Postgres) Put(ctx context.Context, collection string, r model.Record) (model.Record, error) {
	r, query, args, err := upsertDocument(collection, r)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fail(collection, "put", err)
	}
	return r, nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	query, args, err := builder().Delete(tableDocuments).
		Where(squirrel.Eq{"collection": collection, "id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fail(collection, "delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func fail(collection, op string, err error) error {
	metrics.StorageErrors.WithLabelValues(collection, op).Inc()
	return fmt.Errorf("%s %s: %w", op, collection, err)
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func selectDocuments(collection string, q filter.Query) squirrel.SelectBuilder {
	b := builder().Select("body").From(tableDocuments).Where(squirrel.Eq{"collection": collection})
	for _, c := range q.Where {
		b = b.Where(condition(c))
	}
	if q.Sort.Field != "" {
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		b = b.OrderByClause(`COALESCE(body->>?::text, '') COLLATE "C" `+dir, q.Sort.Field)
	}
	b = b.OrderBy("id ASC")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}
	return b
}

func countDocuments(collection string, where []filter.Condition) squirrel.SelectBuilder {
	b := builder().Select("COUNT(*)").From(tableDocuments).Where(squirrel.Eq{"collection": collection})
	for _, c := range where {
		b = b.Where(condition(c))
	}
	return b
}

func upsertDocument(collection string, r model.Record) (model.Record, string, []any, error) {
	r = r.Clone()
	if r.ID() == "" {
		r["id"] = newID()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, "", nil, fmt.Errorf("encode %s record: %w", collection, err)
	}
	query, args, err := builder().Insert(tableDocuments).
		Columns("collection", "id", "body").
		Values(collection, r.ID(), string(body)).
		Suffix("ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()").
		ToSql()
	return r, query, args, err
}

// condition renders one filter as SQL. Field names travel as bind
// parameters like values do, so nothing from a request is spliced in.
func condition(c filter.Condition) squirrel.Sqlizer {
	switch c.Op {
	case filter.Eq:
		return squirrel.Expr("COALESCE(body->>?::text, '') = ?", c.Field, c.Value)
	case filter.In:
		if len(c.Values) == 0 {
			return squirrel.Expr("FALSE")
		}
		args := make([]any, 0, len(c.Values)+1)
		args = append(args, c.Field)
		for _, v := range c.Values {
			args = append(args, v)
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(c.Values)), ",")
		return squirrel.Expr("body->>?::text IN ("+marks+")", args...)
	case filter.Gte:
		return squirrel.Expr(`(body->>?::text) COLLATE "C" >= ?`, c.Field, c.Value)
	case filter.Lte:
		return squirrel.Expr(`(body->>?::text) COLLATE "C" <= ?`, c.Field, c.Value)
	case filter.Prefix:
		return squirrel.Expr("body->>?::text LIKE ?", c.Field, likeEscape(c.Value)+"%")
	case filter.Contains:
		or := squirrel.Or{}
		for _, f := range c.Fields {
			or = append(or, squirrel.Expr("body->>?::text ILIKE ?", f, "%"+likeEscape(c.Value)+"%"))
		}
		if len(or) == 0 {
			return squirrel.Expr("FALSE")
		}
		return or
	case filter.FirstPrefix:
		if len(c.Fields) == 0 {
			return squirrel.Expr("FALSE")
		}
		args := make([]any, 0, len(c.Fields)+1)
		for _, f := range c.Fields {
			args = append(args, f)
		}
		args = append(args, likeEscape(c.Value)+"%")
		first := strings.TrimSuffix(strings.Repeat("NULLIF(body->>?::text, ''),", len(c.Fields)), ",")
		return squirrel.Expr("COALESCE("+first+") LIKE ?", args...)
	default:
		return squirrel.Expr("FALSE")
	}
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string { return likeReplacer.Replace(s) }
