// Package repository declares the storage contracts the service layer depends on.
// The sqlite sub-package is the only implementation; services and tests only
// see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/wishlist/internal/model"
)

// WishlistRepository stores wishlists and serves the nested read model.
type WishlistRepository interface {
	CreateWishlist(ctx context.Context, w *model.Wishlist) error
	// GetFullWishlist returns the wishlist with its sublists and items sorted
	// by order at both levels.
	GetFullWishlist(ctx context.Context, id string) (*model.FullWishlist, error)
	WishlistExists(ctx context.Context, id string) (bool, error)
	RenameWishlist(ctx context.Context, id, name string) (*model.Wishlist, error)
	TouchWishlist(ctx context.Context, id string, at time.Time) error
	DeleteWishlist(ctx context.Context, id string) error
	// CleanupOldWishlists deletes every wishlist not accessed (or, if never
	// accessed, not updated) since cutoff and returns how many were removed.
	CleanupOldWishlists(ctx context.Context, cutoff time.Time) (int64, error)
}

// SublistRepository stores sublists. Every write bumps the owning
// wishlist's updated_at.
type SublistRepository interface {
	CreateSublist(ctx context.Context, s *model.Sublist) error
	RenameSublist(ctx context.Context, id int64, name string) (*model.Sublist, error)
	DeleteSublist(ctx context.Context, id int64) error
}

// ItemRepository stores items. Every write bumps the owning wishlist's updated_at.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	UpdateItem(ctx context.Context, item *model.Item) error
	DeleteItem(ctx context.Context, id int64) error
}

// Store is everything the backend needs from storage.
type Store interface {
	WishlistRepository
	SublistRepository
	ItemRepository
}
