package domain

// Category is a disposal category assigned to a scanned item.
type Category string

const (
	CategoryRecyclable Category = "recyclable"
	CategoryOrganic    Category = "organic"
	CategoryGeneral    Category = "general"
	CategoryHazardous  Category = "hazardous"
	CategoryEWaste     Category = "ewaste"

	// CategoryLegacyTrash was replaced by CategoryGeneral. Historical cache
	// entries may still carry it, so every read path must normalize it.
	CategoryLegacyTrash Category = "trash"
)

// bagColors maps each category to the municipal bag color shown to the user.
var bagColors = map[Category]string{
	CategoryRecyclable: "blue",
	CategoryOrganic:    "green",
	CategoryGeneral:    "black",
	CategoryHazardous:  "red",
	CategoryEWaste:     "orange",
}

// NormalizeCategory remaps deprecated category values to their successors.
// Applied on cache reads and on live classification results so that entries
// written before the taxonomy change remain servable without a migration.
func NormalizeCategory(c Category) Category {
	if c == CategoryLegacyTrash {
		return CategoryGeneral
	}
	return c
}

// BagColor returns the bag color for a category, normalizing legacy values.
func BagColor(c Category) string {
	if color, ok := bagColors[NormalizeCategory(c)]; ok {
		return color
	}
	return bagColors[CategoryGeneral]
}

// IsKnownCategory reports whether c is a recognized category after
// normalization.
func IsKnownCategory(c Category) bool {
	_, ok := bagColors[NormalizeCategory(c)]
	return ok
}
