// Package gateway is the client's typed view of the wishlist backend.
//
// Every method maps to one REST call (ImportFromJSON to a sequence of them)
// and returns an *Error on failure. Nothing is retried: a failed call is
// reported to the caller, who decides what to tell the user.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sakif/wishlist/internal/model"
)

// HeaderAPIKey carries the anonymous API key on every request.
const HeaderAPIKey = "apikey"

// Client talks to the backend's /rest/v1 API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger used for import diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the backend at baseURL (e.g. "http://localhost:8080").
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKey returns the key sent with every request.
func (c *Client) APIKey() string {
	return c.apiKey
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request. A 2xx response body is decoded into out when out is
// non-nil; anything else becomes an *Error.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindValidation, Message: "cannot encode request", Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/rest/v1"+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindUnknown, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindUnavailable, Message: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &Error{Op: op, Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}
		var env errorEnvelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			gerr.Message = env.Message
		} else {
			gerr.Message = http.StatusText(resp.StatusCode)
		}
		return gerr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || method == http.MethodHead {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: KindUnknown, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func idPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}

func wishlistPath(id string) string {
	return "/wishlists/" + url.PathEscape(id)
}

// =========================================================================
// WISHLISTS
// =========================================================================

// CreateWishlist creates an empty wishlist; the backend assigns its UUID.
func (c *Client) CreateWishlist(ctx context.Context, name string) (*model.Wishlist, error) {
	var w model.Wishlist
	if err := c.do(ctx, "create wishlist", http.MethodPost, "/wishlists",
		map[string]string{"name": name}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWishlist fetches the Full Wishlist. An absent wishlist is (nil, nil),
// not an error.
func (c *Client) GetWishlist(ctx context.Context, id string) (*model.FullWishlist, error) {
	var full model.FullWishlist
	err := c.do(ctx, "get wishlist", http.MethodGet, wishlistPath(id), nil, &full)
	if KindOf(err) == KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &full, nil
}

// WishlistExists probes for a wishlist without fetching it.
func (c *Client) WishlistExists(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, "check wishlist", http.MethodHead, wishlistPath(id), nil, nil)
	switch {
	case err == nil:
		return true, nil
	case KindOf(err) == KindNotFound:
		return false, nil
	default:
		return false, err
	}
}

// RenameWishlist changes a wishlist's name.
func (c *Client) RenameWishlist(ctx context.Context, id, name string) error {
	return c.do(ctx, "rename wishlist", http.MethodPatch, wishlistPath(id),
		map[string]string{"name": name}, nil)
}

// DeleteWishlist deletes a wishlist with its sublists and items.
func (c *Client) DeleteWishlist(ctx context.Context, id string) error {
	return c.do(ctx, "delete wishlist", http.MethodDelete, wishlistPath(id), nil, nil)
}

// TouchLastAccessed records that the wishlist was opened just now.
func (c *Client) TouchLastAccessed(ctx context.Context, id string) error {
	return c.do(ctx, "touch wishlist", http.MethodPost, wishlistPath(id)+"/touch", nil, nil)
}

// CleanupOldWishlists runs the backend's retention procedure and returns how
// many wishlists it removed.
func (c *Client) CleanupOldWishlists(ctx context.Context) (int64, error) {
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, "cleanup wishlists", http.MethodPost, "/rpc/cleanup_old_wishlists", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// =========================================================================
// SUBLISTS
// =========================================================================

// CreateSublist adds a sublist at the given order.
func (c *Client) CreateSublist(ctx context.Context, wishlistID, name string, order int) (*model.Sublist, error) {
	body := struct {
		WishlistID string `json:"wishlist_id"`
		Name       string `json:"name"`
		Order      int    `json:"order"`
	}{wishlistID, name, order}

	var s model.Sublist
	if err := c.do(ctx, "create sublist", http.MethodPost, "/sublists", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RenameSublist changes a sublist's name.
func (c *Client) RenameSublist(ctx context.Context, id int64, name string) error {
	return c.do(ctx, "rename sublist", http.MethodPatch, idPath("/sublists", id),
		map[string]string{"name": name}, nil)
}

// DeleteSublist deletes a sublist and its items.
func (c *Client) DeleteSublist(ctx context.Context, id int64) error {
	return c.do(ctx, "delete sublist", http.MethodDelete, idPath("/sublists", id), nil, nil)
}

// =========================================================================
// ITEMS
// =========================================================================

// CreateItem adds an unclaimed item at the given order.
func (c *Client) CreateItem(ctx context.Context, sublistID int64, text string, order int) (*model.Item, error) {
	body := struct {
		SublistID int64  `json:"sublist_id"`
		Text      string `json:"text"`
		Order     int    `json:"order"`
	}{sublistID, text, order}

	var item model.Item
	if err := c.do(ctx, "create item", http.MethodPost, "/items", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies a partial update.
func (c *Client) UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) error {
	return c.do(ctx, "update item", http.MethodPatch, idPath("/items", id), patch, nil)
}

// ClaimItem marks the item as claimed by name.
func (c *Client) ClaimItem(ctx context.Context, id int64, name string) error {
	claimed := true
	return c.do(ctx, "claim item", http.MethodPatch, idPath("/items", id),
		model.ItemPatch{Claimed: &claimed, ClaimedBy: &name}, nil)
}

// UnclaimItem clears the claim and the claimant together.
func (c *Client) UnclaimItem(ctx context.Context, id int64) error {
	claimed := false
	return c.do(ctx, "unclaim item", http.MethodPatch, idPath("/items", id),
		model.ItemPatch{Claimed: &claimed}, nil)
}

// DeleteItem deletes an item.
func (c *Client) DeleteItem(ctx context.Context, id int64) error {
	return c.do(ctx, "delete item", http.MethodDelete, idPath("/items", id), nil, nil)
}

// =========================================================================
// IMPORT
// =========================================================================

// ImportFromJSON recreates an exported wishlist.
//
// If a wishlist with the payload's ID already exists, nothing is written and
// the payload's own wishlist fields are returned: the caller navigates to the
// list and sees whatever the backend currently holds. Otherwise the wishlist
// is created with the payload ID verbatim (so old share links keep working),
// followed by each sublist and its items in order, re-applying claims.
//
// A sublist or item that fails to create is logged and skipped; the import
// as a whole still succeeds with whatever made it.
func (c *Client) ImportFromJSON(ctx context.Context, full *model.FullWishlist) (*model.Wishlist, error) {
	if full == nil || full.ID == "" {
		return nil, &Error{Op: "import wishlist", Kind: KindValidation, Message: "file has no wishlist id"}
	}

	exists, err := c.WishlistExists(ctx, full.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		w := full.Wishlist
		return &w, nil
	}

	var created model.Wishlist
	if err := c.do(ctx, "import wishlist", http.MethodPost, "/wishlists",
		map[string]string{"id": full.ID, "name": full.Name}, &created); err != nil {
		return nil, err
	}

	for _, sub := range full.Sublists {
		newSub, err := c.CreateSublist(ctx, created.ID, sub.Name, sub.Order)
		if err != nil {
			c.logger.Error("failed to import sublist",
				slog.String("wishlist_id", created.ID),
				slog.String("name", sub.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, item := range sub.Items {
			newItem, err := c.CreateItem(ctx, newSub.ID, item.Text, item.Order)
			if err != nil {
				c.logger.Error("failed to import item",
					slog.Int64("sublist_id", newSub.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if item.Claimed && item.ClaimedByName() != "" {
				if err := c.ClaimItem(ctx, newItem.ID, item.ClaimedByName()); err != nil {
					c.logger.Error("failed to re-apply claim",
						slog.Int64("item_id", newItem.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	return &created, nil
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable || errors.Is(err, context.DeadlineExceeded)
}
