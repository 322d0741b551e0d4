// Package model defines the data structures shared by the backend and the client.
//
// The JSON tags are the wire format: the same shape is used for REST bodies,
// change-feed records and exported wishlist files, so renaming a tag is a
// breaking change for every saved export.
package model

import "time"

// Wishlist is the top-level shareable list. Its ID is a UUID that also appears
// in the list's URL, so it is chosen by the client (or generated by the server
// when the client leaves it empty).
type Wishlist struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Sublist is a named grouping of items inside a wishlist (a person or a category).
// Order is an insertion-order key; it is not necessarily contiguous.
type Sublist struct {
	ID         int64     `json:"id"`
	WishlistID string    `json:"wishlist_id"`
	Name       string    `json:"name"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
}

// Item is a single wish. ClaimedBy is nil whenever Claimed is false.
type Item struct {
	ID        int64     `json:"id"`
	SublistID int64     `json:"sublist_id"`
	Text      string    `json:"text"`
	Claimed   bool      `json:"claimed"`
	ClaimedBy *string   `json:"claimed_by"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// ClaimedByName returns the claimant or "" when the item is unclaimed.
func (i Item) ClaimedByName() string {
	if i.ClaimedBy == nil {
		return ""
	}
	return *i.ClaimedBy
}

// SublistWithItems is a sublist with its items eagerly loaded.
type SublistWithItems struct {
	Sublist
	Items []Item `json:"items"`
}

// FullWishlist is the fully hydrated read model: a wishlist, its sublists and
// each sublist's items, both levels sorted by Order ascending.
//
// It is the only shape the view renderer consumes and the canonical
// export/import file format.
type FullWishlist struct {
	Wishlist
	Sublists []SublistWithItems `json:"sublists"`
}

// FindItem looks up an item anywhere in the wishlist.
func (f *FullWishlist) FindItem(id int64) (*Item, bool) {
	for si := range f.Sublists {
		for ii := range f.Sublists[si].Items {
			if f.Sublists[si].Items[ii].ID == id {
				return &f.Sublists[si].Items[ii], true
			}
		}
	}
	return nil, false
}

// FindSublist looks up a sublist by ID.
func (f *FullWishlist) FindSublist(id int64) (*SublistWithItems, bool) {
	for si := range f.Sublists {
		if f.Sublists[si].ID == id {
			return &f.Sublists[si], true
		}
	}
	return nil, false
}

// ItemCount returns the number of items across all sublists.
func (f *FullWishlist) ItemCount() int {
	n := 0
	for _, s := range f.Sublists {
		n += len(s.Items)
	}
	return n
}

// ItemPatch is a partial item update. Nil fields are left unchanged.
//
// Claim state travels as a pair: setting Claimed=false always clears the
// claimant, regardless of ClaimedBy.
type ItemPatch struct {
	Text      *string `json:"text,omitempty"`
	Claimed   *bool   `json:"claimed,omitempty"`
	ClaimedBy *string `json:"claimed_by,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Text == nil && p.Claimed == nil && p.ClaimedBy == nil && p.Order == nil
}
