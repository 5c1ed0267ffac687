package domain

// Category classifies a note. Stored as its enumerated name string.
type Category string

const (
	CategoryNone     Category = "NONE"
	CategoryPersonal Category = "PERSONAL"
	CategoryWork     Category = "WORK"
	CategoryStudy    Category = "STUDY"
	CategoryIdeas    Category = "IDEAS"
	CategoryShopping Category = "SHOPPING"
)

var categoryNames = map[Category]bool{
	CategoryNone:     true,
	CategoryPersonal: true,
	CategoryWork:     true,
	CategoryStudy:    true,
	CategoryIdeas:    true,
	CategoryShopping: true,
}

// Categories lists every valid category, the "none" sentinel first.
func Categories() []Category {
	return []Category{
		CategoryNone,
		CategoryPersonal,
		CategoryWork,
		CategoryStudy,
		CategoryIdeas,
		CategoryShopping,
	}
}

// CategoryFromName maps a stored name back to a Category. Unknown or corrupt
// names fall back to CategoryNone rather than propagating.
func CategoryFromName(name string) Category {
	c := Category(name)
	if categoryNames[c] {
		return c
	}
	return CategoryNone
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return categoryNames[c]
}
