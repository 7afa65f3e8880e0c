package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"landdev/internal/domain"
)

// selectRecord joins the core table (when linked) so reads always return the
// fully hydrated record.
func (r *Repo) selectRecord(e *domain.Entity) sq.SelectBuilder {
	cols := make([]string, 0, len(e.Fields)+1)
	cols = append(cols, "t."+e.Key)
	for _, f := range e.Fields {
		cols = append(cols, qualify(&f))
	}
	q := r.sq.Select(cols...).From(e.Table + " t")
	if e.Core != nil {
		q = q.LeftJoin(fmt.Sprintf("%s c ON c.%s = t.%s", e.Core.Table, e.Core.Key, e.Core.FK))
	}
	return q
}

func qualify(f *domain.Field) string {
	if f.Target == domain.TargetCore {
		return "c." + f.Column
	}
	return "t." + f.Column
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(s scanner, e *domain.Entity) (domain.Record, error) {
	var id int64
	dest := make([]any, 0, len(e.Fields)+1)
	dest = append(dest, &id)
	for _, f := range e.Fields {
		dest = append(dest, nullFor(f.Type))
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	rec := domain.Record{"id": id}
	for i, f := range e.Fields {
		rec[f.Name] = fromNull(dest[i+1])
	}
	return rec, nil
}

func nullFor(t domain.FieldType) any {
	switch t {
	case domain.TypeInt:
		return new(sql.NullInt64)
	case domain.TypeDecimal:
		return new(sql.NullFloat64)
	case domain.TypeBool:
		return new(sql.NullBool)
	case domain.TypeDate:
		return new(sql.NullTime)
	default:
		return new(sql.NullString)
	}
}

func fromNull(v any) any {
	switch n := v.(type) {
	case *sql.NullInt64:
		if n.Valid {
			return n.Int64
		}
	case *sql.NullFloat64:
		if n.Valid {
			return n.Float64
		}
	case *sql.NullBool:
		if n.Valid {
			return n.Bool
		}
	case *sql.NullTime:
		if n.Valid {
			return n.Time.UTC().Format("2006-01-02")
		}
	case *sql.NullString:
		if n.Valid {
			return n.String
		}
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, e *domain.Entity, id int64) (domain.Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sqlStr, args, err := r.selectRecord(e).Where(sq.Eq{"t." + e.Key: id}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, sqlStr, args...), e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *Repo) List(ctx context.Context, e *domain.Entity, q domain.ListQuery) ([]domain.Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b := r.selectRecord(e)
	for _, f := range q.Filters {
		b = b.Where(sq.Eq{qualify(f.Field): f.Value})
	}
	b = b.OrderBy("t." + e.Key + " DESC").Limit(uint64(q.Limit)).Offset(uint64(q.Offset))

	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, e)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) Insert(ctx context.Context, e *domain.Entity, values []domain.Assignment) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ch := domain.ApplyDerivations(e, domain.Changes{Primary: values}, nil)
	cols := make([]string, 0, len(ch.Primary))
	vals := make([]any, 0, len(ch.Primary))
	for _, a := range ch.Primary {
		cols = append(cols, a.Field.Column)
		vals = append(vals, a.Value)
	}
	res, err := exec(ctx, r.db, r.sq.Insert(e.Table).Columns(cols...).Values(vals...))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) UpdateFields(ctx context.Context, e *domain.Entity, id int64, ch domain.Changes) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		fk, current, err := r.lockRow(ctx, tx, e, id, ch)
		if err != nil {
			return err
		}
		ch = domain.ApplyDerivations(e, ch, current)

		// a relink in the same change set moves core writes to the new record
		if e.Core != nil {
			for _, a := range ch.Primary {
				if a.Field.Column == e.Core.FK {
					v, ok := a.Value.(int64)
					fk = sql.NullInt64{Int64: v, Valid: ok}
				}
			}
		}

		if len(ch.Core) > 0 {
			if !fk.Valid {
				return domain.Invalid("%s %d has no linked %s record", e.Name, id, e.Core.Table)
			}
			u := r.sq.Update(e.Core.Table)
			for _, a := range ch.Core {
				u = u.Set(a.Field.Column, a.Value)
			}
			if _, err := exec(ctx, tx, u.Where(sq.Eq{e.Core.Key: fk.Int64})); err != nil {
				return err
			}
		}

		if len(ch.Primary) > 0 {
			u := r.sq.Update(e.Table)
			for _, a := range ch.Primary {
				u = u.Set(a.Field.Column, a.Value)
			}
			if _, err := exec(ctx, tx, u.Where(sq.Eq{e.Key: id})); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockRow takes a row lock on the primary record and reads what the update
// depends on: the core foreign key and the stored operands of any derivation
// the change set touches.
func (r *Repo) lockRow(ctx context.Context, tx *sql.Tx, e *domain.Entity, id int64, ch domain.Changes) (sql.NullInt64, map[string]*float64, error) {
	var (
		key    int64
		fk     sql.NullInt64
		inputs []string
	)
	cols := []string{e.Key}
	dest := []any{&key}
	if e.Core != nil {
		cols = append(cols, e.Core.FK)
		dest = append(dest, &fk)
	}
	seen := map[string]bool{}
	for _, d := range e.Derived {
		if !d.Touches(ch) {
			continue
		}
		for _, in := range d.Inputs {
			if seen[in] {
				continue
			}
			seen[in] = true
			f, _ := e.Field(in)
			inputs = append(inputs, in)
			cols = append(cols, f.Column)
		}
	}
	vals := make([]sql.NullFloat64, len(inputs))
	for i := range vals {
		dest = append(dest, &vals[i])
	}

	sqlStr, args, err := r.sq.Select(cols...).From(e.Table).Where(sq.Eq{e.Key: id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return fk, nil, err
	}
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fk, nil, domain.ErrNotFound
		}
		return fk, nil, err
	}

	current := make(map[string]*float64, len(inputs))
	for i, name := range inputs {
		if vals[i].Valid {
			v := vals[i].Float64
			current[name] = &v
		}
	}
	return fk, current, nil
}

func (r *Repo) Delete(ctx context.Context, e *domain.Entity, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := exec(ctx, r.db, r.sq.Delete(e.Table).Where(sq.Eq{e.Key: id}))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
