package types

import (
	"golang.org/x/xerrors"
)

// Kind tells which part of an advisory a category comes from.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindRemediation
)

// Category is a product status or remediation category of a CSAF VEX advisory.
type Category int

var (
	// Categories lists every category name, indexed by Category.
	// Product statuses come from /vulnerabilities[]/product_status,
	// remediation categories from /vulnerabilities[]/remediations[]/category.
	// cf. https://docs.oasis-open.org/csaf/csaf/v2.0/os/csaf-v2.0-os.html#3239-vulnerabilities-property---product-status
	Categories = []string{
		"unknown",
		"first_affected",
		"first_fixed",
		"fixed",
		"known_affected",
		"known_not_affected",
		"last_affected",
		"recommended",
		"under_investigation",
		"vendor_fix",
		"workaround",
		"mitigation",
		"no_fix_planned",
		"none_available",
	}

	ErrUnknownCategory = xerrors.New("unknown category")
)

const (
	CategoryUnknown Category = iota
	CategoryFirstAffected
	CategoryFirstFixed
	CategoryFixed
	CategoryKnownAffected
	CategoryKnownNotAffected
	CategoryLastAffected
	CategoryRecommended
	CategoryUnderInvestigation
	CategoryVendorFix
	CategoryWorkaround
	CategoryMitigation
	CategoryNoFixPlanned
	CategoryNoneAvailable
)

// StatusCategories returns the product status categories in declaration order.
func StatusCategories() []Category {
	return []Category{
		CategoryFirstAffected,
		CategoryFirstFixed,
		CategoryFixed,
		CategoryKnownAffected,
		CategoryKnownNotAffected,
		CategoryLastAffected,
		CategoryRecommended,
		CategoryUnderInvestigation,
	}
}

// RemediationCategories returns the remediation categories in declaration order.
func RemediationCategories() []Category {
	return []Category{
		CategoryVendorFix,
		CategoryWorkaround,
		CategoryMitigation,
		CategoryNoFixPlanned,
		CategoryNoneAvailable,
	}
}

// NewCategory parses a category name. Unknown names yield ErrUnknownCategory.
func NewCategory(name string) (Category, error) {
	for i, s := range Categories {
		if i != 0 && name == s {
			return Category(i), nil
		}
	}
	return CategoryUnknown, xerrors.Errorf("%q: %w", name, ErrUnknownCategory)
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(Categories) {
		return Categories[0]
	}
	return Categories[c]
}

func (c Category) Kind() Kind {
	switch {
	case c >= CategoryFirstAffected && c <= CategoryUnderInvestigation:
		return KindStatus
	case c >= CategoryVendorFix && c <= CategoryNoneAvailable:
		return KindRemediation
	}
	return KindUnknown
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(data []byte) error {
	category, err := NewCategory(string(data))
	if err != nil {
		return err
	}
	*c = category
	return nil
}

// ParseCategories parses a list of names, failing on the first unknown one.
func ParseCategories(names []string) ([]Category, error) {
	categories := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := NewCategory(name)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}
