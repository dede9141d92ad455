package domain

// Category is one of the fixed cuisine options offered in the category prompt.
type Category struct {
	Label string
	// FilterKey is the directory tag the category resolves to; empty means
	// the label is matched as a substring of name or address instead.
	FilterKey string
	// Wildcard marks the "no preference" option.
	Wildcard bool
}

// Categories is the category menu, in display order.
var Categories = []Category{
	{Label: "飯"},
	{Label: "麵"},
	{Label: "咖啡", FilterKey: "cafe"},
	{Label: "不限", Wildcard: true},
}

// LookupCategory finds a category by its label.
func LookupCategory(label string) (Category, bool) {
	for _, c := range Categories {
		if c.Label == label {
			return c, true
		}
	}
	return Category{}, false
}

// Budget is a price-tier ceiling.
type Budget struct {
	Label    string
	MaxPrice int
}

// Budgets is the budget menu, in display order.
var Budgets = []Budget{
	{Label: "$", MaxPrice: 1},
	{Label: "$$", MaxPrice: 2},
	{Label: "$$$", MaxPrice: 3},
}

// LookupBudget finds a budget tier by its label.
func LookupBudget(label string) (Budget, bool) {
	for _, b := range Budgets {
		if b.Label == label {
			return b, true
		}
	}
	return Budget{}, false
}
