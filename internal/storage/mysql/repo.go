package mysql

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

type Repo struct {
	db      *sql.DB
	sq      sq.StatementBuilderType
	timeout time.Duration
}

// New returns a repository whose calls are each bounded by timeout (0 disables).
func New(db *sql.DB, timeout time.Duration) *Repo {
	return &Repo{db: db, sq: sq.StatementBuilder, timeout: timeout}
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// withTx runs fn within a transaction, rolling back on any error.
func (r *Repo) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, db execer, q sq.Sqlizer) (sql.Result, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}
