package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/wishlist/internal/apperror"
	"github.com/sakif/wishlist/internal/model"
)

// CreateSublist adds a named sublist to a wishlist at the given order.
func (s *WishlistService) CreateSublist(ctx context.Context, wishlistID, name string, order int) (*model.Sublist, error) {
	wishlistID, err := validateWishlistID(wishlistID)
	if err != nil {
		return nil, apperror.ValidationFailed("wishlist_id", "wishlist ID is required")
	}
	if name, err = validateName("name", name); err != nil {
		return nil, err
	}
	if order < 0 {
		return nil, apperror.ValidationFailed("order", "order must not be negative")
	}

	sub := &model.Sublist{WishlistID: wishlistID, Name: name, Order: order}
	if err := s.repo.CreateSublist(ctx, sub); err != nil {
		return nil, fmt.Errorf("creating sublist: %w", err)
	}

	s.logger.Info("sublist created",
		slog.Int64("id", sub.ID),
		slog.String("wishlist_id", wishlistID),
	)
	return sub, nil
}

// RenameSublist changes a sublist's name.
func (s *WishlistService) RenameSublist(ctx context.Context, id int64, name string) (*model.Sublist, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "sublist ID is required")
	}
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.RenameSublist(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("renaming sublist: %w", err)
	}
	return sub, nil
}

// DeleteSublist removes a sublist and its items.
func (s *WishlistService) DeleteSublist(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed("id", "sublist ID is required")
	}
	if err := s.repo.DeleteSublist(ctx, id); err != nil {
		return fmt.Errorf("deleting sublist: %w", err)
	}
	s.logger.Info("sublist deleted", slog.Int64("id", id))
	return nil
}

func validateItemText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "item text is required")
	}
	if len([]rune(text)) > MaxItemTextLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("item text must be %d characters or less", MaxItemTextLength))
	}
	return text, nil
}

func validateClaimant(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("claimed_by", "a claimed item needs the claimant's name")
	}
	if len([]rune(name)) > MaxClaimantLength {
		return "", apperror.ValidationFailed("claimed_by",
			fmt.Sprintf("claimant name must be %d characters or less", MaxClaimantLength))
	}
	return name, nil
}

// CreateItem adds an unclaimed item to a sublist.
func (s *WishlistService) CreateItem(ctx context.Context, sublistID int64, text string, order int) (*model.Item, error) {
	if sublistID <= 0 {
		return nil, apperror.ValidationFailed("sublist_id", "sublist ID is required")
	}
	text, err := validateItemText(text)
	if err != nil {
		return nil, err
	}
	if order < 0 {
		return nil, apperror.ValidationFailed("order", "order must not be negative")
	}

	item := &model.Item{SublistID: sublistID, Text: text, Order: order}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

// UpdateItem applies a partial update.
//
// CLAIM RULES:
//   - claimed=true needs a non-empty claimed_by
//   - claimed=false always clears claimed_by, whatever the patch says
//   - claimed_by alone renames the claimant of an already-claimed item
//
// These keep the stored invariant "claimed_by is set exactly when claimed".
func (s *WishlistService) UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) (*model.Item, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "item ID is required")
	}
	if patch.IsEmpty() {
		return nil, apperror.ValidationFailed("patch", "nothing to update")
	}

	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Text != nil {
		text, err := validateItemText(*patch.Text)
		if err != nil {
			return nil, err
		}
		item.Text = text
	}

	if patch.Order != nil {
		if *patch.Order < 0 {
			return nil, apperror.ValidationFailed("order", "order must not be negative")
		}
		item.Order = *patch.Order
	}

	switch {
	case patch.Claimed != nil && !*patch.Claimed:
		item.Claimed = false
		item.ClaimedBy = nil
	case patch.Claimed != nil && *patch.Claimed:
		claimant := ""
		if patch.ClaimedBy != nil {
			claimant = *patch.ClaimedBy
		}
		name, err := validateClaimant(claimant)
		if err != nil {
			return nil, err
		}
		item.Claimed = true
		item.ClaimedBy = &name
	case patch.ClaimedBy != nil:
		if !item.Claimed {
			return nil, apperror.ValidationFailed("claimed_by", "item is not claimed")
		}
		name, err := validateClaimant(*patch.ClaimedBy)
		if err != nil {
			return nil, err
		}
		item.ClaimedBy = &name
	}

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	if patch.Claimed != nil {
		s.logger.Info("item claim changed",
			slog.Int64("id", id),
			slog.Bool("claimed", item.Claimed),
		)
	}
	return item, nil
}

// DeleteItem removes an item.
func (s *WishlistService) DeleteItem(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed("id", "item ID is required")
	}
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}
