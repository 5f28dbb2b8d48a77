package models

// Category labels a consent category. Category binding allows selective
// revocation without affecting other flows.
type Category string

const (
	CategoryEssential Category = "essential"
	CategoryAnalytics Category = "analytics"
	CategoryMarketing Category = "marketing"
)

// ValidCategories is the single source of truth for all valid consent categories.
var ValidCategories = map[Category]bool{
	CategoryEssential: true,
	CategoryAnalytics: true,
	CategoryMarketing: true,
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return ValidCategories[c]
}

// Revocable reports whether a visitor may toggle the category. Essential is
// always on and never offered as a choice.
func (c Category) Revocable() bool {
	return c == CategoryAnalytics || c == CategoryMarketing
}
