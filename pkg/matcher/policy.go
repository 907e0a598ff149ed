package matcher

import (
	"slices"

	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/types"
)

// Policy decides which category a match is reported under and which categories count as affecting.
type Policy struct {
	// Priority orders categories for the first-match-wins status of a package.
	// Categories not listed follow in their declaration order.
	Priority []types.Category
	// Exclude lists categories that are reported but never count as affecting a package.
	Exclude set.Set[types.Category]
}

// DefaultPolicy ranks remediations before statuses so that vendor_fix is never shadowed by workaround.
// Nothing is excluded.
func DefaultPolicy() Policy {
	return Policy{
		Priority: []types.Category{
			types.CategoryVendorFix,
			types.CategoryNoFixPlanned,
			types.CategoryNoneAvailable,
			types.CategoryWorkaround,
			types.CategoryMitigation,
			types.CategoryFixed,
			types.CategoryFirstFixed,
			types.CategoryKnownAffected,
			types.CategoryFirstAffected,
			types.CategoryLastAffected,
			types.CategoryRecommended,
			types.CategoryUnderInvestigation,
			types.CategoryKnownNotAffected,
		},
		Exclude: set.New[types.Category](),
	}
}

// Order returns every known category, prioritized ones first, without duplicates.
func (p Policy) Order() []types.Category {
	all := append(types.StatusCategories(), types.RemediationCategories()...)
	order := make([]types.Category, 0, len(all))
	for _, c := range p.Priority {
		if c.Kind() != types.KindUnknown && !slices.Contains(order, c) {
			order = append(order, c)
		}
	}
	for _, c := range all {
		if !slices.Contains(order, c) {
			order = append(order, c)
		}
	}
	return order
}

func (p Policy) excluded(c types.Category) bool {
	return p.Exclude.Contains(c)
}
