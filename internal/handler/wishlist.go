package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/wishlist/internal/model"
)

// WishlistService is what the REST handlers need from the service layer.
type WishlistService interface {
	CreateWishlist(ctx context.Context, id, name string) (*model.Wishlist, error)
	GetFullWishlist(ctx context.Context, id string) (*model.FullWishlist, error)
	WishlistExists(ctx context.Context, id string) (bool, error)
	RenameWishlist(ctx context.Context, id, name string) (*model.Wishlist, error)
	TouchWishlist(ctx context.Context, id string) error
	DeleteWishlist(ctx context.Context, id string) error
	CleanupOldWishlists(ctx context.Context, retention time.Duration) (int64, error)

	CreateSublist(ctx context.Context, wishlistID, name string, order int) (*model.Sublist, error)
	RenameSublist(ctx context.Context, id int64, name string) (*model.Sublist, error)
	DeleteSublist(ctx context.Context, id int64) error

	CreateItem(ctx context.Context, sublistID int64, text string, order int) (*model.Item, error)
	UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) (*model.Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

// WishlistHandler serves /rest/v1.
type WishlistHandler struct {
	svc       WishlistService
	retention time.Duration
	onCleanup func(deleted int64, err error)
	logger    *slog.Logger
}

// NewWishlistHandler creates the REST handler. retention is the age used by
// the cleanup RPC; onCleanup, when non-nil, observes every cleanup result.
func NewWishlistHandler(svc WishlistService, retention time.Duration, onCleanup func(int64, error), logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{
		svc:       svc,
		retention: retention,
		onCleanup: onCleanup,
		logger:    logger,
	}
}

// Routes mounts every REST endpoint on r.
func (h *WishlistHandler) Routes(r chi.Router) {
	r.Post("/wishlists", h.HandleCreateWishlist)
	r.Get("/wishlists/{id}", h.HandleGetWishlist)
	r.Head("/wishlists/{id}", h.HandleWishlistExists)
	r.Patch("/wishlists/{id}", h.HandleRenameWishlist)
	r.Delete("/wishlists/{id}", h.HandleDeleteWishlist)
	r.Post("/wishlists/{id}/touch", h.HandleTouchWishlist)

	r.Post("/sublists", h.HandleCreateSublist)
	r.Patch("/sublists/{id}", h.HandleRenameSublist)
	r.Delete("/sublists/{id}", h.HandleDeleteSublist)

	r.Post("/items", h.HandleCreateItem)
	r.Patch("/items/{id}", h.HandleUpdateItem)
	r.Delete("/items/{id}", h.HandleDeleteItem)

	r.Post("/rpc/cleanup_old_wishlists", h.HandleCleanup)
}

// =========================================================================
// WISHLISTS
// =========================================================================

type createWishlistRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleCreateWishlist handles POST /rest/v1/wishlists.
func (h *WishlistHandler) HandleCreateWishlist(w http.ResponseWriter, r *http.Request) {
	var req createWishlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	wl, err := h.svc.CreateWishlist(r.Context(), req.ID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

// HandleGetWishlist handles GET /rest/v1/wishlists/{id} and returns the
// nested Full Wishlist.
func (h *WishlistHandler) HandleGetWishlist(w http.ResponseWriter, r *http.Request) {
	full, err := h.svc.GetFullWishlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

// HandleWishlistExists handles HEAD /rest/v1/wishlists/{id}: 200 or 404,
// never a body.
func (h *WishlistHandler) HandleWishlistExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.WishlistExists(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		h.logger.Warn("existence check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// HandleRenameWishlist handles PATCH /rest/v1/wishlists/{id}.
func (h *WishlistHandler) HandleRenameWishlist(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	wl, err := h.svc.RenameWishlist(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

// HandleTouchWishlist handles POST /rest/v1/wishlists/{id}/touch.
func (h *WishlistHandler) HandleTouchWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TouchWishlist(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteWishlist handles DELETE /rest/v1/wishlists/{id}.
func (h *WishlistHandler) HandleDeleteWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteWishlist(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// SUBLISTS
// =========================================================================

type createSublistRequest struct {
	WishlistID string `json:"wishlist_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

// HandleCreateSublist handles POST /rest/v1/sublists.
func (h *WishlistHandler) HandleCreateSublist(w http.ResponseWriter, r *http.Request) {
	var req createSublistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.svc.CreateSublist(r.Context(), req.WishlistID, req.Name, req.Order)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// HandleRenameSublist handles PATCH /rest/v1/sublists/{id}.
func (h *WishlistHandler) HandleRenameSublist(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.svc.RenameSublist(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleDeleteSublist handles DELETE /rest/v1/sublists/{id}.
func (h *WishlistHandler) HandleDeleteSublist(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.DeleteSublist(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// ITEMS
// =========================================================================

type createItemRequest struct {
	SublistID int64  `json:"sublist_id"`
	Text      string `json:"text"`
	Order     int    `json:"order"`
}

// HandleCreateItem handles POST /rest/v1/items. New items are always unclaimed.
func (h *WishlistHandler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	item, err := h.svc.CreateItem(r.Context(), req.SublistID, req.Text, req.Order)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleUpdateItem handles PATCH /rest/v1/items/{id} with a partial body.
func (h *WishlistHandler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var patch model.ItemPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	item, err := h.svc.UpdateItem(r.Context(), id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDeleteItem handles DELETE /rest/v1/items/{id}.
func (h *WishlistHandler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.DeleteItem(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// RPC
// =========================================================================

// CleanupResponse is the body of the cleanup RPC.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// HandleCleanup handles POST /rest/v1/rpc/cleanup_old_wishlists.
func (h *WishlistHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CleanupOldWishlists(r.Context(), h.retention)
	if h.onCleanup != nil {
		h.onCleanup(n, err)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: n})
}
