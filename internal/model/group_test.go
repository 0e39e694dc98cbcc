package model

import "testing"

func groupedList() List {
	three := 3
	seven := 7
	return List{
		ID:        "l1",
		ShareCode: "ABCDEF",
		Name:      "Courses",
		Items: []Item{
			{ID: "1", Name: "Lait", Category: "laitiers", Aisle: &seven},
			{ID: "2", Name: "Pommes", Category: "fruits", Aisle: &three},
			{ID: "3", Name: "Savon", Category: "hygiene"},
			{ID: "4", Name: "Bananes", Category: "fruits", Aisle: &three},
			{ID: "5", Name: "Truc", Category: "pas-une-categorie"},
		},
	}
}

func TestGroupByCategoryFollowsFixedOrder(t *testing.T) {
	groups := groupedList().GroupItems(DisplayByCategory)

	want := []string{"🍎 Fruits", "🧀 Produits laitiers", "🧴 Hygiène", "📦 Autre"}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, g := range groups {
		if g.Label != want[i] {
			t.Errorf("group %d label = %q, want %q", i, g.Label, want[i])
		}
	}
	if len(groups[0].Items) != 2 {
		t.Errorf("fruits has %d items, want 2", len(groups[0].Items))
	}
	// Unknown categories land in the fallback bucket.
	if groups[3].Items[0].Name != "Truc" {
		t.Errorf("fallback bucket = %+v", groups[3].Items)
	}
}

func TestGroupByAisleSortsWithUnassignedLast(t *testing.T) {
	groups := groupedList().GroupItems(DisplayByAisle)

	want := []string{"Rayon 3", "Rayon 7", "Sans rayon"}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, g := range groups {
		if g.Label != want[i] {
			t.Errorf("group %d label = %q, want %q", i, g.Label, want[i])
		}
	}
	if len(groups[2].Items) != 2 {
		t.Errorf("unassigned has %d items, want 2", len(groups[2].Items))
	}
}

func TestGroupAllKeepsListOrder(t *testing.T) {
	l := groupedList()
	groups := l.GroupItems(DisplayAll)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	for i, item := range groups[0].Items {
		if item.ID != l.Items[i].ID {
			t.Errorf("item %d = %s, want %s", i, item.ID, l.Items[i].ID)
		}
	}

	if got := (List{}).GroupItems(DisplayAll); got != nil {
		t.Errorf("empty list should group to nil, got %+v", got)
	}
}
