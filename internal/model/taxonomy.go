package model

// Category classifies a bank item within the fixed research taxonomy.
// Stored values are lower snake case; display names live with the consumers.
type Category string

// The fixed taxonomy, in rank order. Catalog ordering sorts categories by
// this list; categories outside it sort after all known ones, keeping their
// relative order.
const (
	CategorySociodemographics Category = "sociodemographics"
	CategoryProduction        Category = "production_systems"
	CategoryProcessing        Category = "processing_storage"
	CategoryDistribution      Category = "distribution_markets"
	CategoryConsumption       Category = "consumption_nutrition"
	CategoryIncome            Category = "income_livelihoods"
	CategoryEnvironment       Category = "environment_climate"
	CategoryGovernance        Category = "governance_policy"
)

var taxonomy = []Category{
	CategorySociodemographics,
	CategoryProduction,
	CategoryProcessing,
	CategoryDistribution,
	CategoryConsumption,
	CategoryIncome,
	CategoryEnvironment,
	CategoryGovernance,
}

var categoryRank = func() map[Category]int {
	m := make(map[Category]int, len(taxonomy))
	for i, c := range taxonomy {
		m[c] = i
	}
	return m
}()

// Rank returns the category's position in the fixed taxonomy and whether the
// category belongs to it. Unknown categories report ok=false.
func (c Category) Rank() (int, bool) {
	r, ok := categoryRank[c]
	return r, ok
}

// Known reports whether the category is part of the fixed taxonomy.
func (c Category) Known() bool {
	_, ok := categoryRank[c]
	return ok
}

// Categories returns the fixed taxonomy in rank order. The returned slice is
// a copy; callers may reorder it freely.
func Categories() []Category {
	out := make([]Category, len(taxonomy))
	copy(out, taxonomy)
	return out
}
