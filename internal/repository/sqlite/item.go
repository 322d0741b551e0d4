package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/wishlist/internal/apperror"
	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/model"
)

const itemColumns = `id, sublist_id, text, claimed, claimed_by, "order", created_at`

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		item      model.Item
		claimedBy sql.NullString
	)
	if err := row.Scan(&item.ID, &item.SublistID, &item.Text, &item.Claimed, &claimedBy, &item.Order, &item.CreatedAt); err != nil {
		return nil, err
	}
	if claimedBy.Valid {
		name := claimedBy.String
		item.ClaimedBy = &name
	}
	return &item, nil
}

func getItem(ctx context.Context, q querier, id int64) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("item", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting item %d: %w", id, err)
	}
	return item, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateItem inserts item under its sublist and fills in ID and CreatedAt.
func (db *DB) CreateItem(ctx context.Context, item *model.Item) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		parent, err := getSublist(ctx, tx, item.SublistID)
		if err != nil {
			return err
		}

		now := db.timestamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items (sublist_id, text, claimed, claimed_by, "order", created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.SublistID, item.Text, item.Claimed, nullableString(item.ClaimedBy), item.Order, now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading item id: %w", err)
		}
		item.ID = id
		item.CreatedAt = now

		if err := bumpWishlist(ctx, tx, parent.WishlistID, now); err != nil {
			return err
		}
		changes.add(changefeed.TableItems, changefeed.Insert, item, nil, now)
		return nil
	})
}

// GetItem returns a single item.
func (db *DB) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	return getItem(ctx, db.conn, id)
}

// UpdateItem overwrites the mutable fields of item (text, claim state, order).
func (db *DB) UpdateItem(ctx context.Context, item *model.Item) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getItem(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		parent, err := getSublist(ctx, tx, old.SublistID)
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET text = ?, claimed = ?, claimed_by = ?, "order" = ? WHERE id = ?`,
			item.Text, item.Claimed, nullableString(item.ClaimedBy), item.Order, item.ID,
		); err != nil {
			return fmt.Errorf("sqlite: updating item %d: %w", item.ID, err)
		}
		if err := bumpWishlist(ctx, tx, parent.WishlistID, now); err != nil {
			return err
		}

		item.SublistID = old.SublistID
		item.CreatedAt = old.CreatedAt
		changes.add(changefeed.TableItems, changefeed.Update, item, old, now)
		return nil
	})
}

// DeleteItem removes a single item.
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx, changes *txChanges) error {
		old, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		parent, err := getSublist(ctx, tx, old.SublistID)
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting item %d: %w", id, err)
		}
		if err := bumpWishlist(ctx, tx, parent.WishlistID, now); err != nil {
			return err
		}
		changes.add(changefeed.TableItems, changefeed.Delete, nil, old, now)
		return nil
	})
}
