package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/wishlist/internal/config"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/server"
)

// newBackend runs the real backend on an in-memory database.
func newBackend(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(config.Server{
		DBPath:          ":memory:",
		CleanupInterval: time.Hour,
		Retention:       90 * 24 * time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL, "", WithLogger(logger))
}

func TestScenario_GiftsAliceBookBob(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()

	w, err := c.CreateWishlist(ctx, "Gifts")
	require.NoError(t, err)
	sub, err := c.CreateSublist(ctx, w.ID, "Alice", 0)
	require.NoError(t, err)
	item, err := c.CreateItem(ctx, sub.ID, "Book", 0)
	require.NoError(t, err)
	require.NoError(t, c.ClaimItem(ctx, item.ID, "Bob"))

	full, err := c.GetWishlist(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, full)

	assert.Equal(t, "Gifts", full.Name)
	require.Len(t, full.Sublists, 1)
	assert.Equal(t, "Alice", full.Sublists[0].Name)
	require.Len(t, full.Sublists[0].Items, 1)
	got := full.Sublists[0].Items[0]
	assert.Equal(t, "Book", got.Text)
	assert.True(t, got.Claimed)
	assert.Equal(t, "Bob", got.ClaimedByName())
}

func TestClaimUnclaimToggle(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()

	w, _ := c.CreateWishlist(ctx, "Toggle")
	sub, _ := c.CreateSublist(ctx, w.ID, "Alice", 0)
	item, err := c.CreateItem(ctx, sub.ID, "Scarf", 0)
	require.NoError(t, err)
	assert.False(t, item.Claimed)
	assert.Nil(t, item.ClaimedBy)

	require.NoError(t, c.ClaimItem(ctx, item.ID, "Bob"))
	require.NoError(t, c.UnclaimItem(ctx, item.ID))

	full, err := c.GetWishlist(ctx, w.ID)
	require.NoError(t, err)
	it, ok := full.FindItem(item.ID)
	require.True(t, ok)
	assert.False(t, it.Claimed)
	assert.Nil(t, it.ClaimedBy)
}

func TestGetWishlist_AbsentIsNil(t *testing.T) {
	c := newBackend(t)

	full, err := c.GetWishlist(context.Background(), "3b241101-e2bb-4255-8caf-4136c566a962")

	assert.NoError(t, err)
	assert.Nil(t, full)
}

func TestWishlistExists(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	w, _ := c.CreateWishlist(ctx, "Probe")

	ok, err := c.WishlistExists(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.WishlistExists(ctx, "3b241101-e2bb-4255-8caf-4136c566a962")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameDeleteAndTouch(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	w, _ := c.CreateWishlist(ctx, "Before")
	sub, _ := c.CreateSublist(ctx, w.ID, "Alice", 0)
	item, _ := c.CreateItem(ctx, sub.ID, "Book", 0)

	require.NoError(t, c.RenameWishlist(ctx, w.ID, "After"))
	require.NoError(t, c.RenameSublist(ctx, sub.ID, "Alicia"))
	text := "Novel"
	require.NoError(t, c.UpdateItem(ctx, item.ID, model.ItemPatch{Text: &text}))
	require.NoError(t, c.TouchLastAccessed(ctx, w.ID))

	full, err := c.GetWishlist(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", full.Name)
	assert.Equal(t, "Alicia", full.Sublists[0].Name)
	assert.Equal(t, "Novel", full.Sublists[0].Items[0].Text)
	assert.NotNil(t, full.LastAccessedAt)

	require.NoError(t, c.DeleteItem(ctx, item.ID))
	require.NoError(t, c.DeleteSublist(ctx, sub.ID))
	require.NoError(t, c.DeleteWishlist(ctx, w.ID))

	full, err = c.GetWishlist(ctx, w.ID)
	assert.NoError(t, err)
	assert.Nil(t, full)
}

func TestCleanupOldWishlists(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	c.CreateWishlist(ctx, "Recent")

	n, err := c.CleanupOldWishlists(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// =========================================================================
// IMPORT TESTS
// =========================================================================

func exportFixture(id string, sublists, itemsPer int) *model.FullWishlist {
	full := &model.FullWishlist{Wishlist: model.Wishlist{ID: id, Name: "Imported"}}
	for s := 0; s < sublists; s++ {
		sub := model.SublistWithItems{Sublist: model.Sublist{Name: fmt.Sprintf("Person %d", s), Order: s}}
		for i := 0; i < itemsPer; i++ {
			item := model.Item{Text: fmt.Sprintf("Wish %d.%d", s, i), Order: i}
			if i%2 == 0 {
				name := fmt.Sprintf("Claimer %d", i)
				item.Claimed = true
				item.ClaimedBy = &name
			}
			sub.Items = append(sub.Items, item)
		}
		full.Sublists = append(full.Sublists, sub)
	}
	return full
}

func TestImportFromJSON_FreshCreatesEverything(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	const id = "6fa459ea-ee8a-3ca4-894e-db77e160355e"
	payload := exportFixture(id, 3, 4)

	w, err := c.ImportFromJSON(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, id, w.ID, "import keeps the payload id")

	full, err := c.GetWishlist(ctx, id)
	require.NoError(t, err)
	require.Len(t, full.Sublists, 3)
	for s, sub := range full.Sublists {
		assert.Equal(t, fmt.Sprintf("Person %d", s), sub.Name)
		require.Len(t, sub.Items, 4)
		for i, item := range sub.Items {
			assert.Equal(t, fmt.Sprintf("Wish %d.%d", s, i), item.Text)
			assert.Equal(t, i%2 == 0, item.Claimed)
			if item.Claimed {
				assert.Equal(t, fmt.Sprintf("Claimer %d", i), item.ClaimedByName())
			} else {
				assert.Nil(t, item.ClaimedBy)
			}
		}
	}
	assert.Equal(t, 12, full.ItemCount())
}

func TestImportFromJSON_SkipsRejectedRows(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	const id = "0b6f0e8c-2f1a-4c43-9d2e-6a1f3c5e7d90"

	payload := &model.FullWishlist{
		Wishlist: model.Wishlist{ID: id, Name: "Gifts"},
		Sublists: []model.SublistWithItems{
			{
				Sublist: model.Sublist{Name: "Alice"},
				Items: []model.Item{
					{Text: "Book"},
					{Text: "", Order: 1},
					{Text: "Scarf", Order: 2},
				},
			},
			{
				Sublist: model.Sublist{Name: "", Order: 1},
				Items:   []model.Item{{Text: "Lost with its sublist"}},
			},
		},
	}

	w, err := c.ImportFromJSON(ctx, payload)
	require.NoError(t, err, "rejected rows do not fail the import")
	assert.Equal(t, id, w.ID)

	full, err := c.GetWishlist(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, full)
	require.Len(t, full.Sublists, 1)
	assert.Equal(t, "Alice", full.Sublists[0].Name)

	var texts []string
	for _, item := range full.Sublists[0].Items {
		texts = append(texts, item.Text)
	}
	assert.Equal(t, []string{"Book", "Scarf"}, texts)
}

func TestImportFromJSON_ExistingIsUntouched(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()
	const id = "6fa459ea-ee8a-3ca4-894e-db77e160355e"
	payload := exportFixture(id, 2, 2)

	_, err := c.ImportFromJSON(ctx, payload)
	require.NoError(t, err)

	payload.Name = "Changed in the file"
	w, err := c.ImportFromJSON(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, id, w.ID)
	assert.Equal(t, "Changed in the file", w.Name, "returns the payload's fields")

	full, err := c.GetWishlist(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Imported", full.Name, "no merge happened")
	assert.Len(t, full.Sublists, 2)
	assert.Equal(t, 4, full.ItemCount())
}

func TestImportFromJSON_ExportRoundTrip(t *testing.T) {
	c := newBackend(t)
	ctx := context.Background()

	w, _ := c.CreateWishlist(ctx, "Round trip")
	alice, _ := c.CreateSublist(ctx, w.ID, "Alice", 0)
	bob, _ := c.CreateSublist(ctx, w.ID, "Bob", 1)
	book, _ := c.CreateItem(ctx, alice.ID, "Book", 0)
	c.CreateItem(ctx, alice.ID, "Pen", 1)
	c.CreateItem(ctx, bob.ID, "Hat", 0)
	require.NoError(t, c.ClaimItem(ctx, book.ID, "Carol"))

	exported, err := c.GetWishlist(ctx, w.ID)
	require.NoError(t, err)
	require.NoError(t, c.DeleteWishlist(ctx, w.ID))

	_, err = c.ImportFromJSON(ctx, exported)
	require.NoError(t, err)

	again, err := c.GetWishlist(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, shape(exported), shape(again))
}

// shape reduces a Full Wishlist to the fields an import preserves.
func shape(f *model.FullWishlist) []string {
	out := []string{f.ID, f.Name}
	for _, s := range f.Sublists {
		out = append(out, fmt.Sprintf("S %s %d", s.Name, s.Order))
		for _, i := range s.Items {
			out = append(out, fmt.Sprintf("I %s %d %v %s", i.Text, i.Order, i.Claimed, i.ClaimedByName()))
		}
	}
	return out
}

func TestImportFromJSON_MissingID(t *testing.T) {
	c := newBackend(t)

	_, err := c.ImportFromJSON(context.Background(), &model.FullWishlist{})

	assert.Equal(t, KindValidation, KindOf(err))
}

// =========================================================================
// ERROR CLASSIFICATION TESTS
// =========================================================================

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		want    Kind
		message string
	}{
		{http.StatusBadRequest, `{"error":"validation_error","message":"name is required"}`, KindValidation, "name is required"},
		{http.StatusConflict, `{"error":"conflict","message":"wishlist conflict"}`, KindValidation, "wishlist conflict"},
		{http.StatusUnprocessableEntity, ``, KindValidation, "Unprocessable Entity"},
		{http.StatusNotFound, `{"error":"not_found","message":"item not found"}`, KindNotFound, "item not found"},
		{http.StatusServiceUnavailable, `oops`, KindUnavailable, "Service Unavailable"},
		{http.StatusInternalServerError, `{"error":"internal_error","message":"An internal error occurred"}`, KindUnknown, "An internal error occurred"},
		{http.StatusUnauthorized, `{"error":"unauthorized","message":"a valid API key is required"}`, KindUnknown, "a valid API key is required"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			err := New(ts.URL, "").DeleteItem(context.Background(), 1)

			var gerr *Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.want, gerr.Kind)
			assert.Equal(t, tt.status, gerr.Status)
			assert.Equal(t, tt.message, gerr.Message)
			assert.Equal(t, "delete item", gerr.Op)
		})
	}
}

func TestUnreachableBackendIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, "").CreateWishlist(context.Background(), "x")

	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.True(t, IsUnavailable(err))
}

func TestAPIKeyHeaderIsSent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderAPIKey)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	require.NoError(t, New(ts.URL, "secret-key").DeleteItem(context.Background(), 1))
	assert.Equal(t, "secret-key", got)
}
