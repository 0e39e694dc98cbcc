package model

import (
	"sort"
	"strconv"
)

// Group is one display bucket of items.
type Group struct {
	Label string
	Items []Item
}

// GroupItems buckets the list's items for display. DisplayByCategory follows
// the fixed category order, DisplayByAisle sorts ascending with unassigned
// items last, DisplayAll is a single bucket in list order. Empty buckets are
// omitted.
func (l List) GroupItems(mode DisplayMode) []Group {
	switch mode {
	case DisplayByAisle:
		return l.groupByAisle()
	case DisplayAll:
		if len(l.Items) == 0 {
			return nil
		}
		return []Group{{Items: cloneItems(l.Items)}}
	default:
		return l.groupByCategory()
	}
}

func (l List) groupByCategory() []Group {
	buckets := make(map[string][]Item)
	for _, item := range l.Items {
		key := item.Category
		if !ValidCategory(key) {
			key = CategoryOther
		}
		buckets[key] = append(buckets[key], item)
	}

	var groups []Group
	for _, c := range Categories {
		if items := buckets[c.Key]; len(items) > 0 {
			groups = append(groups, Group{Label: c.Emoji + " " + c.Label, Items: items})
		}
	}
	return groups
}

func (l List) groupByAisle() []Group {
	const noAisle = "Sans rayon"

	buckets := make(map[int][]Item)
	var unassigned []Item
	for _, item := range l.Items {
		if item.Aisle == nil {
			unassigned = append(unassigned, item)
			continue
		}
		buckets[*item.Aisle] = append(buckets[*item.Aisle], item)
	}

	aisles := make([]int, 0, len(buckets))
	for a := range buckets {
		aisles = append(aisles, a)
	}
	sort.Ints(aisles)

	var groups []Group
	for _, a := range aisles {
		groups = append(groups, Group{Label: aisleLabel(a), Items: buckets[a]})
	}
	if len(unassigned) > 0 {
		groups = append(groups, Group{Label: noAisle, Items: unassigned})
	}
	return groups
}

func aisleLabel(aisle int) string {
	return "Rayon " + strconv.Itoa(aisle)
}
