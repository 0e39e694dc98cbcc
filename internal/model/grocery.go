package model

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultListName is the name given to the list synthesized for a user with
// no memberships.
const DefaultListName = "Ma Liste"

// Category is one of the fixed grocery categories.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// CategoryOther is the fallback category key.
const CategoryOther = "autre"

// Categories is the fixed set of grocery categories, in display order.
var Categories = []Category{
	{Key: "fruits", Label: "Fruits", Emoji: "🍎"},
	{Key: "legumes", Label: "Légumes", Emoji: "🥦"},
	{Key: "viandes", Label: "Viandes", Emoji: "🥩"},
	{Key: "laitiers", Label: "Produits laitiers", Emoji: "🧀"},
	{Key: "epicerie", Label: "Épicerie", Emoji: "🍝"},
	{Key: "boissons", Label: "Boissons", Emoji: "🥤"},
	{Key: "hygiene", Label: "Hygiène", Emoji: "🧴"},
	{Key: CategoryOther, Label: "Autre", Emoji: "📦"},
}

// ValidCategory reports whether key is one of the fixed category keys.
func ValidCategory(key string) bool {
	for _, c := range Categories {
		if c.Key == key {
			return true
		}
	}
	return false
}

// DisplayMode controls how the CLI groups items.
type DisplayMode string

const (
	DisplayByCategory DisplayMode = "category"
	DisplayByAisle    DisplayMode = "aisle"
	DisplayAll        DisplayMode = "all"
)

// Item is a single entry on a grocery list.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Aisle    *int   `json:"aisle,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	Checked  bool   `json:"checked"`
}

// List is a named grocery list. ShareCode doubles as the list's document key
// in the remote store and never changes once assigned; ID is the local
// identity and may be regenerated if a remote snapshot arrives without one.
type List struct {
	ID        string `json:"id"`
	ShareCode string `json:"shareCode"`
	Name      string `json:"name"`
	Items     []Item `json:"items"`
}

// NewList builds an empty list with a fresh id and the given share code.
func NewList(name, shareCode string) List {
	return List{
		ID:        uuid.NewString(),
		ShareCode: shareCode,
		Name:      name,
		Items:     []Item{},
	}
}

// NormalizeName canonicalizes an item name: whitespace trimmed, first rune
// upper-cased, remainder lower-cased. ok is false when the trimmed name is
// empty.
func NormalizeName(name string) (normalized string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	runes := []rune(strings.ToLower(name))
	first := strings.ToUpper(string(runes[0]))
	return first + string(runes[1:]), true
}

// The transforms below are pure: they return a new List and never modify the
// receiver's item slice.

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// AddItem prepends a new unchecked item with a fresh id. The name must
// already be normalized and the category validated by the caller.
func (l List) AddItem(name, category string, aisle *int, quantity string) List {
	items := make([]Item, 0, len(l.Items)+1)
	items = append(items, Item{
		ID:       uuid.NewString(),
		Name:     name,
		Category: category,
		Aisle:    aisle,
		Quantity: quantity,
	})
	items = append(items, l.Items...)
	l.Items = items
	return l
}

// UpdateItem replaces the mutable fields of the item with the given id.
// Unknown ids leave the list unchanged.
func (l List) UpdateItem(id, name, category string, aisle *int, quantity string) List {
	items := cloneItems(l.Items)
	for i := range items {
		if items[i].ID == id {
			items[i].Name = name
			items[i].Category = category
			items[i].Aisle = aisle
			items[i].Quantity = quantity
			break
		}
	}
	l.Items = items
	return l
}

// ToggleItem flips the checked flag of the item with the given id.
func (l List) ToggleItem(id string) List {
	items := cloneItems(l.Items)
	for i := range items {
		if items[i].ID == id {
			items[i].Checked = !items[i].Checked
			break
		}
	}
	l.Items = items
	return l
}

// RemoveItem deletes the item with the given id, preserving the order of the
// remaining items.
func (l List) RemoveItem(id string) List {
	items := make([]Item, 0, len(l.Items))
	for _, it := range l.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	l.Items = items
	return l
}

// RemoveChecked deletes every checked item, preserving the relative order of
// the unchecked ones.
func (l List) RemoveChecked() List {
	items := make([]Item, 0, len(l.Items))
	for _, it := range l.Items {
		if !it.Checked {
			items = append(items, it)
		}
	}
	l.Items = items
	return l
}

// Rename sets the list's display name.
func (l List) Rename(name string) List {
	l.Name = name
	return l
}

// UncheckedCount returns the number of items not yet checked off.
func (l List) UncheckedCount() int {
	n := 0
	for _, it := range l.Items {
		if !it.Checked {
			n++
		}
	}
	return n
}

// CheckedCount returns the number of checked-off items.
func (l List) CheckedCount() int {
	return len(l.Items) - l.UncheckedCount()
}

// Item returns the item with the given id, or nil.
func (l List) Item(id string) *Item {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return &l.Items[i]
		}
	}
	return nil
}
