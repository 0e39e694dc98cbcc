package model

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  lait  ", "Lait", true},
		{"BANANES", "Bananes", true},
		{"pain de mie", "Pain de mie", true},
		{"épinards", "Épinards", true},
		{"   ", "", false},
		{"", "", false},
		{"x", "X", true},
	}
	for _, tt := range tests {
		got, ok := NormalizeName(tt.in)
		if ok != tt.ok {
			t.Errorf("NormalizeName(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddItemPrepends(t *testing.T) {
	l := NewList("Courses", "A3B7K2")
	l = l.AddItem("Lait", "laitiers", nil, "")
	l = l.AddItem("Pain", "epicerie", nil, "")

	if len(l.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(l.Items))
	}
	if l.Items[0].Name != "Pain" {
		t.Errorf("newest item should be first, got %q", l.Items[0].Name)
	}
	if l.Items[0].ID == "" || l.Items[1].ID == "" {
		t.Error("expected fresh ids on both items")
	}
	if l.Items[0].ID == l.Items[1].ID {
		t.Error("item ids must be unique")
	}
	if l.Items[0].Checked {
		t.Error("new items start unchecked")
	}
}

func TestToggleItemTwiceRestores(t *testing.T) {
	aisle := 4
	l := NewList("Courses", "A3B7K2")
	l = l.AddItem("Lait", "laitiers", &aisle, "1L")
	orig := l.Items[0]

	l = l.ToggleItem(orig.ID)
	if !l.Items[0].Checked {
		t.Fatal("first toggle should check the item")
	}
	l = l.ToggleItem(orig.ID)
	got := l.Items[0]
	if got.Checked {
		t.Error("second toggle should uncheck the item")
	}
	if got.Name != orig.Name || got.Category != orig.Category || got.Quantity != orig.Quantity {
		t.Errorf("toggle changed other fields: got %+v, want %+v", got, orig)
	}
	if got.Aisle == nil || *got.Aisle != aisle {
		t.Errorf("toggle changed aisle: got %v", got.Aisle)
	}
}

func TestToggleDoesNotMutateReceiver(t *testing.T) {
	l := NewList("Courses", "A3B7K2")
	l = l.AddItem("Lait", "laitiers", nil, "")

	toggled := l.ToggleItem(l.Items[0].ID)
	if l.Items[0].Checked {
		t.Error("transform mutated the original list")
	}
	if !toggled.Items[0].Checked {
		t.Error("transform result missing the change")
	}
}

func TestRemoveCheckedKeepsOrder(t *testing.T) {
	l := NewList("Courses", "A3B7K2")
	for _, name := range []string{"Riz", "Lait", "Pain", "Eau"} {
		l = l.AddItem(name, CategoryOther, nil, "")
	}
	// Items are newest-first: Eau, Pain, Lait, Riz. Check Pain and Riz.
	l = l.ToggleItem(l.Items[1].ID)
	l = l.ToggleItem(l.Items[3].ID)

	l = l.RemoveChecked()
	if len(l.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(l.Items))
	}
	if l.Items[0].Name != "Eau" || l.Items[1].Name != "Lait" {
		t.Errorf("unexpected order after RemoveChecked: %q, %q", l.Items[0].Name, l.Items[1].Name)
	}
}

func TestRemoveItem(t *testing.T) {
	l := NewList("Courses", "A3B7K2")
	l = l.AddItem("Lait", "laitiers", nil, "")
	l = l.AddItem("Pain", "epicerie", nil, "")

	l = l.RemoveItem(l.Items[1].ID)
	if len(l.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(l.Items))
	}
	if l.Items[0].Name != "Pain" {
		t.Errorf("wrong item removed, remaining %q", l.Items[0].Name)
	}
}

func TestCounts(t *testing.T) {
	l := NewList("Courses", "A3B7K2")
	l = l.AddItem("Lait", "laitiers", nil, "")
	l = l.AddItem("Pain", "epicerie", nil, "")
	l = l.AddItem("Eau", "boissons", nil, "")
	l = l.ToggleItem(l.Items[0].ID)

	if got := l.UncheckedCount(); got != 2 {
		t.Errorf("UncheckedCount = %d, want 2", got)
	}
	if got := l.CheckedCount(); got != 1 {
		t.Errorf("CheckedCount = %d, want 1", got)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		if !ValidCategory(c.Key) {
			t.Errorf("ValidCategory(%q) = false", c.Key)
		}
	}
	if ValidCategory("surgele") {
		t.Error("ValidCategory accepted an unknown key")
	}
}
