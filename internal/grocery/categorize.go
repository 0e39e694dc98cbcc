// Package grocery guesses the category of an item from its name.
package grocery

import (
	"strings"

	"chicklist/internal/model"
)

// Categorize returns the category key for the given item name. It performs
// case-insensitive matching: exact match first, then substring match.
// Falls back to "autre" if no match is found.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return model.CategoryOther
	}

	// Phase 1: exact match
	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	// Phase 2: substring match (ordered longer/more-specific first)
	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return model.CategoryOther
}

var exactMatch = map[string]string{
	// Fruits
	"pomme":      "fruits",
	"pommes":     "fruits",
	"banane":     "fruits",
	"bananes":    "fruits",
	"orange":     "fruits",
	"oranges":    "fruits",
	"citron":     "fruits",
	"citrons":    "fruits",
	"fraise":     "fruits",
	"fraises":    "fruits",
	"framboises": "fruits",
	"myrtilles":  "fruits",
	"raisin":     "fruits",
	"poire":      "fruits",
	"poires":     "fruits",
	"pêche":      "fruits",
	"pêches":     "fruits",
	"abricot":    "fruits",
	"abricots":   "fruits",
	"melon":      "fruits",
	"pastèque":   "fruits",
	"ananas":     "fruits",
	"mangue":     "fruits",
	"kiwi":       "fruits",
	"kiwis":      "fruits",
	"avocat":     "fruits",
	"avocats":    "fruits",

	// Légumes
	"tomate":        "legumes",
	"tomates":       "legumes",
	"pomme de terre": "legumes",
	"pommes de terre": "legumes",
	"patates":       "legumes",
	"oignon":        "legumes",
	"oignons":       "legumes",
	"ail":           "legumes",
	"salade":        "legumes",
	"laitue":        "legumes",
	"épinards":      "legumes",
	"brocoli":       "legumes",
	"carotte":       "legumes",
	"carottes":      "legumes",
	"céleri":        "legumes",
	"concombre":     "legumes",
	"poivron":       "legumes",
	"poivrons":      "legumes",
	"champignons":   "legumes",
	"courgette":     "legumes",
	"courgettes":    "legumes",
	"aubergine":     "legumes",
	"haricots verts": "legumes",
	"poireau":       "legumes",
	"poireaux":      "legumes",

	// Viandes
	"poulet":   "viandes",
	"boeuf":    "viandes",
	"bœuf":     "viandes",
	"porc":     "viandes",
	"jambon":   "viandes",
	"saucisses": "viandes",
	"steak":    "viandes",
	"lardons":  "viandes",
	"dinde":    "viandes",
	"agneau":   "viandes",
	"saumon":   "viandes",
	"thon":     "viandes",
	"crevettes": "viandes",
	"cabillaud": "viandes",

	// Produits laitiers
	"lait":     "laitiers",
	"beurre":   "laitiers",
	"crème":    "laitiers",
	"yaourt":   "laitiers",
	"yaourts":  "laitiers",
	"fromage":  "laitiers",
	"camembert": "laitiers",
	"comté":    "laitiers",
	"emmental": "laitiers",
	"mozzarella": "laitiers",
	"oeufs":    "laitiers",
	"œufs":     "laitiers",

	// Épicerie
	"pain":      "epicerie",
	"baguette":  "epicerie",
	"pâtes":     "epicerie",
	"riz":       "epicerie",
	"farine":    "epicerie",
	"sucre":     "epicerie",
	"sel":       "epicerie",
	"poivre":    "epicerie",
	"huile":     "epicerie",
	"vinaigre":  "epicerie",
	"moutarde":  "epicerie",
	"ketchup":   "epicerie",
	"mayonnaise": "epicerie",
	"céréales":  "epicerie",
	"confiture": "epicerie",
	"miel":      "epicerie",
	"chocolat":  "epicerie",
	"biscuits":  "epicerie",
	"chips":     "epicerie",
	"conserves": "epicerie",

	// Boissons
	"eau":      "boissons",
	"jus":      "boissons",
	"café":     "boissons",
	"thé":      "boissons",
	"bière":    "boissons",
	"bières":   "boissons",
	"vin":      "boissons",
	"soda":     "boissons",
	"limonade": "boissons",
	"sirop":    "boissons",

	// Hygiène
	"savon":       "hygiene",
	"shampoing":   "hygiene",
	"dentifrice":  "hygiene",
	"déodorant":   "hygiene",
	"mouchoirs":   "hygiene",
	"coton":       "hygiene",
	"rasoir":      "hygiene",
	"lessive":     "hygiene",
	"éponge":      "hygiene",
	"éponges":     "hygiene",
	"javel":       "hygiene",
	"papier toilette": "hygiene",
}

var substringMatches = []struct {
	keyword  string
	category string
}{
	{"papier toilette", "hygiene"},
	{"pommes de terre", "legumes"},
	{"pomme de terre", "legumes"},
	{"haricot", "legumes"},
	{"jus de", "boissons"},
	{"yaourt", "laitiers"},
	{"fromage", "laitiers"},
	{"crème", "laitiers"},
	{"lait", "laitiers"},
	{"poulet", "viandes"},
	{"boeuf", "viandes"},
	{"bœuf", "viandes"},
	{"poisson", "viandes"},
	{"saucisse", "viandes"},
	{"pomme", "fruits"},
	{"banane", "fruits"},
	{"fraise", "fruits"},
	{"salade", "legumes"},
	{"tomate", "legumes"},
	{"carotte", "legumes"},
	{"oignon", "legumes"},
	{"pain", "epicerie"},
	{"pâte", "epicerie"},
	{"biscuit", "epicerie"},
	{"gâteau", "epicerie"},
	{"céréale", "epicerie"},
	{"eau ", "boissons"},
	{"café", "boissons"},
	{"bière", "boissons"},
	{"savon", "hygiene"},
	{"shampoing", "hygiene"},
	{"gel douche", "hygiene"},
	{"dentifrice", "hygiene"},
}
