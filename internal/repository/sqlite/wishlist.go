package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/wishlist/internal/apperror"
	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/repository"
)

// Compile-time check that *DB satisfies every repository contract.
var _ repository.Store = (*DB)(nil)

const wishlistColumns = `id, name, created_at, updated_at, last_accessed_at`

func scanWishlist(row rowScanner) (*model.Wishlist, error) {
	var (
		w        model.Wishlist
		accessed sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt, &accessed); err != nil {
		return nil, err
	}
	if accessed.Valid {
		t := accessed.Time
		w.LastAccessedAt = &t
	}
	return &w, nil
}

func getWishlist(ctx context.Context, q querier, id string) (*model.Wishlist, error) {
	w, err := scanWishlist(q.QueryRowContext(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("wishlist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting wishlist %s: %w", id, err)
	}
	return w, nil
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateWishlist inserts w. An empty ID is replaced with a fresh UUID; a
// caller-supplied ID is stored verbatim, which is how imports keep their URL.
func (db *DB) CreateWishlist(ctx context.Context, w *model.Wishlist) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := db.timestamp()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.LastAccessedAt = nil

	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO wishlists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			w.ID, w.Name, w.CreatedAt, w.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return apperror.Conflict("wishlist", w.ID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: creating wishlist: %w", err)
		}
		changes.add(changefeed.TableWishlists, changefeed.Insert, w, nil, now)
		return nil
	})
}

// GetFullWishlist loads the wishlist, then its sublists, then all of their
// items, and stitches them together. Each result set is fully drained before
// the next query runs.
func (db *DB) GetFullWishlist(ctx context.Context, id string) (*model.FullWishlist, error) {
	w, err := getWishlist(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}

	full := &model.FullWishlist{Wishlist: *w, Sublists: []model.SublistWithItems{}}

	sublists, err := db.listSublists(ctx, id)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(sublists))
	for i, s := range sublists {
		index[s.ID] = i
		full.Sublists = append(full.Sublists, model.SublistWithItems{Sublist: s, Items: []model.Item{}})
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT i.id, i.sublist_id, i.text, i.claimed, i.claimed_by, i."order", i.created_at
		 FROM items i
		 JOIN sublists s ON s.id = i.sublist_id
		 WHERE s.wishlist_id = ?
		 ORDER BY i.sublist_id, i."order", i.id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items of wishlist %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning item: %w", err)
		}
		if i, ok := index[item.SublistID]; ok {
			full.Sublists[i].Items = append(full.Sublists[i].Items, *item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}

	return full, nil
}

// WishlistExists reports whether a wishlist with id is stored.
func (db *DB) WishlistExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM wishlists WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking wishlist %s: %w", id, err)
	}
	return n > 0, nil
}

// RenameWishlist changes the name and bumps updated_at.
func (db *DB) RenameWishlist(ctx context.Context, id, name string) (*model.Wishlist, error) {
	var updated *model.Wishlist
	err := db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getWishlist(ctx, tx, id)
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE wishlists SET name = ?, updated_at = ? WHERE id = ?`,
			name, now, id,
		); err != nil {
			return fmt.Errorf("sqlite: renaming wishlist %s: %w", id, err)
		}

		w := *old
		w.Name = name
		w.UpdatedAt = now
		updated = &w
		changes.add(changefeed.TableWishlists, changefeed.Update, &w, old, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TouchWishlist records an access at the given time. It is bookkeeping for
// the cleanup procedure and does not publish a change: subscribers would
// otherwise reload the list every time anybody opened it.
func (db *DB) TouchWishlist(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE wishlists SET last_accessed_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: touching wishlist %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("wishlist", id)
	}
	return nil
}

// DeleteWishlist removes the wishlist; sublists and items go with it through
// ON DELETE CASCADE. Only the wishlist row's deletion is published.
func (db *DB) DeleteWishlist(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getWishlist(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM wishlists WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting wishlist %s: %w", id, err)
		}
		changes.add(changefeed.TableWishlists, changefeed.Delete, nil, old, db.timestamp())
		return nil
	})
}

// CleanupOldWishlists deletes every wishlist whose last access (or, for lists
// never opened, last update) is older than cutoff.
//
// The candidates are selected and compared in Go rather than in SQL, so the
// comparison does not depend on how the driver formats timestamps.
func (db *DB) CleanupOldWishlists(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+wishlistColumns+` FROM wishlists`)
		if err != nil {
			return fmt.Errorf("sqlite: listing wishlists: %w", err)
		}

		var stale []*model.Wishlist
		for rows.Next() {
			w, err := scanWishlist(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("sqlite: scanning wishlist: %w", err)
			}
			seen := w.UpdatedAt
			if w.LastAccessedAt != nil {
				seen = *w.LastAccessedAt
			}
			if seen.Before(cutoff) {
				stale = append(stale, w)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("sqlite: iterating wishlists: %w", err)
		}

		now := db.timestamp()
		for _, w := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM wishlists WHERE id = ?`, w.ID); err != nil {
				return fmt.Errorf("sqlite: deleting wishlist %s: %w", w.ID, err)
			}
			changes.add(changefeed.TableWishlists, changefeed.Delete, nil, w, now)
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
