package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
)

// ErrNullColumn marks a row with a NULL where a value is required.
var ErrNullColumn = errors.New("null column")

// scanRows runs query and yields one decoded record per row. Decode errors
// are yielded alongside the zero record; query and cursor errors end the
// sequence after being yielded.
func scanRows[T any](ctx context.Context, s *SQLiteStore, query string, args []any, decode func(*sql.Rows) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		st, err := s.stmt(ctx, query)
		if err != nil {
			yield(zero, err)
			return
		}

		rows, err := st.QueryContext(ctx, args...)
		if err != nil {
			yield(zero, fmt.Errorf("query rows: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			if !yield(decode(rows)) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("iterate rows: %w", err))
		}
	}
}

// Fold consumes seq, calling fn for every record that decoded and counting
// the ones that did not.
func Fold[T any](seq iter.Seq2[T, error], fn func(T)) (skipped int, errs []error) {
	for rec, err := range seq {
		if err != nil {
			skipped++
			errs = append(errs, err)
			continue
		}
		fn(rec)
	}
	return skipped, errs
}

// Collect gathers every record that decoded.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, []error) {
	var out []T
	_, errs := Fold(seq, func(rec T) { out = append(out, rec) })
	return out, errs
}

func decodeSubresource(rows *sql.Rows) (SubresourceRecord, error) {
	var id, parent, hits, lastHit sql.NullInt64
	var key sql.NullString
	if err := rows.Scan(&id, &parent, &key, &hits, &lastHit); err != nil {
		return SubresourceRecord{}, fmt.Errorf("scan subresource: %w", err)
	}
	if !id.Valid || !parent.Valid || !key.Valid || !hits.Valid || !lastHit.Valid {
		return SubresourceRecord{}, fmt.Errorf("subresource %d: %w", id.Int64, ErrNullColumn)
	}
	return SubresourceRecord{
		ID:       id.Int64,
		ParentID: parent.Int64,
		Key:      key.String,
		HitCount: int(hits.Int64),
		LastHit:  fromMicros(lastHit.Int64),
	}, nil
}

func decodeRedirect(rows *sql.Rows) (RedirectRecord, error) {
	var id, parent, hits, lastHit sql.NullInt64
	var uri, origin sql.NullString
	if err := rows.Scan(&id, &parent, &uri, &origin, &hits, &lastHit); err != nil {
		return RedirectRecord{}, fmt.Errorf("scan redirect: %w", err)
	}
	if !id.Valid || !parent.Valid || !uri.Valid || !origin.Valid || !hits.Valid || !lastHit.Valid {
		return RedirectRecord{}, fmt.Errorf("redirect %d: %w", id.Int64, ErrNullColumn)
	}
	return RedirectRecord{
		ID:       id.Int64,
		ParentID: parent.Int64,
		URI:      uri.String,
		Origin:   origin.String,
		HitCount: int(hits.Int64),
		LastHit:  fromMicros(lastHit.Int64),
	}, nil
}

func decodeStartupPage(rows *sql.Rows) (StartupPageRecord, error) {
	var id, hits, lastHit sql.NullInt64
	var origin sql.NullString
	if err := rows.Scan(&id, &origin, &hits, &lastHit); err != nil {
		return StartupPageRecord{}, fmt.Errorf("scan startup page: %w", err)
	}
	if !id.Valid || !origin.Valid || !hits.Valid || !lastHit.Valid {
		return StartupPageRecord{}, fmt.Errorf("startup page %d: %w", id.Int64, ErrNullColumn)
	}
	return StartupPageRecord{
		ID:       id.Int64,
		Origin:   origin.String,
		HitCount: int(hits.Int64),
		LastHit:  fromMicros(lastHit.Int64),
	}, nil
}
