// Package service contains the business rules of the wishlist backend.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates input, enforces claim rules, logs business events
//	Repository      → reads/writes SQLite and publishes row changes
//
// The service only sees repository.Store, so tests swap in an in-memory fake
// and the handlers never learn about SQL.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/wishlist/internal/apperror"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/repository"
)

// Validation limits.
const (
	MaxNameLength       = 200
	MaxItemTextLength   = 1000
	MaxClaimantLength   = 100
	MaxWishlistIDLength = 64
)

// wishlistIDPattern accepts UUIDs and other URL-safe identifiers. Imports
// keep the id of the file they came from, so it is not restricted to UUIDs.
var wishlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// WishlistService handles every operation on wishlists, sublists and items.
type WishlistService struct {
	repo   repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewWishlistService creates a WishlistService.
func NewWishlistService(repo repository.Store, logger *slog.Logger) *WishlistService {
	return &WishlistService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// validateName trims and checks a wishlist or sublist name.
func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed(field, "name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	return name, nil
}

func validateWishlistID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed("id", "wishlist ID is required")
	}
	if len(id) > MaxWishlistIDLength || !wishlistIDPattern.MatchString(id) {
		return "", apperror.ValidationFailed("id", "wishlist ID may only contain letters, digits and dashes")
	}
	return id, nil
}

// CreateWishlist validates and stores a new wishlist. An empty id lets the
// repository generate one.
func (s *WishlistService) CreateWishlist(ctx context.Context, id, name string) (*model.Wishlist, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) != "" {
		if id, err = validateWishlistID(id); err != nil {
			return nil, err
		}
	}

	w := &model.Wishlist{ID: id, Name: name}
	if err := s.repo.CreateWishlist(ctx, w); err != nil {
		s.logger.Error("failed to create wishlist",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating wishlist: %w", err)
	}

	s.logger.Info("wishlist created",
		slog.String("id", w.ID),
		slog.String("name", w.Name),
	)
	return w, nil
}

// GetFullWishlist returns the wishlist with its sublists and items.
func (s *WishlistService) GetFullWishlist(ctx context.Context, id string) (*model.FullWishlist, error) {
	id, err := validateWishlistID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetFullWishlist(ctx, id)
}

// WishlistExists reports whether id names a stored wishlist.
func (s *WishlistService) WishlistExists(ctx context.Context, id string) (bool, error) {
	id, err := validateWishlistID(id)
	if err != nil {
		return false, err
	}
	return s.repo.WishlistExists(ctx, id)
}

// RenameWishlist changes a wishlist's name.
func (s *WishlistService) RenameWishlist(ctx context.Context, id, name string) (*model.Wishlist, error) {
	id, err := validateWishlistID(id)
	if err != nil {
		return nil, err
	}
	if name, err = validateName("name", name); err != nil {
		return nil, err
	}

	w, err := s.repo.RenameWishlist(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("renaming wishlist: %w", err)
	}
	s.logger.Info("wishlist renamed", slog.String("id", id))
	return w, nil
}

// TouchWishlist marks the wishlist as accessed now.
func (s *WishlistService) TouchWishlist(ctx context.Context, id string) error {
	id, err := validateWishlistID(id)
	if err != nil {
		return err
	}
	if err := s.repo.TouchWishlist(ctx, id, s.now()); err != nil {
		return fmt.Errorf("touching wishlist: %w", err)
	}
	return nil
}

// DeleteWishlist removes a wishlist and everything in it.
func (s *WishlistService) DeleteWishlist(ctx context.Context, id string) error {
	id, err := validateWishlistID(id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWishlist(ctx, id); err != nil {
		return fmt.Errorf("deleting wishlist: %w", err)
	}
	s.logger.Info("wishlist deleted", slog.String("id", id))
	return nil
}

// CleanupOldWishlists deletes wishlists nobody has opened within retention.
func (s *WishlistService) CleanupOldWishlists(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, apperror.ValidationFailed("retention", "retention must be positive")
	}

	cutoff := s.now().Add(-retention)
	n, err := s.repo.CleanupOldWishlists(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to clean up old wishlists", slog.String("error", err.Error()))
		return 0, fmt.Errorf("cleaning up wishlists: %w", err)
	}

	s.logger.Info("old wishlists cleaned up",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}
