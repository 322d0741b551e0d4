package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/wishlist/internal/apperror"
	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/model"
)

const sublistColumns = `id, wishlist_id, name, "order", created_at`

func scanSublist(row rowScanner) (*model.Sublist, error) {
	var s model.Sublist
	if err := row.Scan(&s.ID, &s.WishlistID, &s.Name, &s.Order, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func getSublist(ctx context.Context, q querier, id int64) (*model.Sublist, error) {
	s, err := scanSublist(q.QueryRowContext(ctx,
		`SELECT `+sublistColumns+` FROM sublists WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("sublist", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting sublist %d: %w", id, err)
	}
	return s, nil
}

func (db *DB) listSublists(ctx context.Context, wishlistID string) ([]model.Sublist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sublistColumns+` FROM sublists WHERE wishlist_id = ? ORDER BY "order", id`,
		wishlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sublists of wishlist %s: %w", wishlistID, err)
	}
	defer rows.Close()

	var out []model.Sublist
	for rows.Next() {
		s, err := scanSublist(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning sublist: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sublists: %w", err)
	}
	return out, nil
}

// bumpWishlist sets the owning wishlist's updated_at. Child writes call it in
// the same transaction.
func bumpWishlist(ctx context.Context, tx *sql.Tx, wishlistID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE wishlists SET updated_at = ? WHERE id = ?`, at, wishlistID,
	); err != nil {
		return fmt.Errorf("sqlite: bumping wishlist %s: %w", wishlistID, err)
	}
	return nil
}

// CreateSublist inserts s under its wishlist and fills in ID and CreatedAt.
func (db *DB) CreateSublist(ctx context.Context, s *model.Sublist) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		if _, err := getWishlist(ctx, tx, s.WishlistID); err != nil {
			return err
		}

		now := db.timestamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sublists (wishlist_id, name, "order", created_at) VALUES (?, ?, ?, ?)`,
			s.WishlistID, s.Name, s.Order, now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating sublist: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading sublist id: %w", err)
		}
		s.ID = id
		s.CreatedAt = now

		if err := bumpWishlist(ctx, tx, s.WishlistID, now); err != nil {
			return err
		}
		changes.add(changefeed.TableSublists, changefeed.Insert, s, nil, now)
		return nil
	})
}

// RenameSublist changes a sublist's name.
func (db *DB) RenameSublist(ctx context.Context, id int64, name string) (*model.Sublist, error) {
	var updated *model.Sublist
	err := db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getSublist(ctx, tx, id)
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.ExecContext(ctx, `UPDATE sublists SET name = ? WHERE id = ?`, name, id); err != nil {
			return fmt.Errorf("sqlite: renaming sublist %d: %w", id, err)
		}
		if err := bumpWishlist(ctx, tx, old.WishlistID, now); err != nil {
			return err
		}

		s := *old
		s.Name = name
		updated = &s
		changes.add(changefeed.TableSublists, changefeed.Update, &s, old, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSublist removes a sublist and, by cascade, its items.
func (db *DB) DeleteSublist(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getSublist(ctx, tx, id)
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.ExecContext(ctx, `DELETE FROM sublists WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting sublist %d: %w", id, err)
		}
		if err := bumpWishlist(ctx, tx, old.WishlistID, now); err != nil {
			return err
		}
		changes.add(changefeed.TableSublists, changefeed.Delete, nil, old, now)
		return nil
	})
}
