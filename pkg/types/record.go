package types

import (
	"strings"

	"github.com/vulnkit/vulnkit/pkg/set"
)

// AdvisoryID is a lower-cased CVE-like identifier, e.g. "cve-2025-0001".
type AdvisoryID string

func NewAdvisoryID(s string) AdvisoryID {
	return AdvisoryID(strings.ToLower(strings.TrimSpace(s)))
}

// Group returns the year segment used to lay advisories out on disk,
// e.g. "2025" for "cve-2025-0001". It is empty when the ID carries no year.
func (id AdvisoryID) Group() string {
	parts := strings.Split(string(id), "-")
	if len(parts) < 3 || len(parts[1]) != 4 {
		return ""
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return parts[1]
}

func (id AdvisoryID) String() string {
	return string(id)
}

// Key is a canonical "<package-name>:<platform-major-version>" identifier.
type Key string

func NewKey(name, version string) Key {
	return Key(name + ":" + version)
}

// Name returns the package name part of the key.
func (k Key) Name() string {
	name, _ := k.split()
	return name
}

// Version returns the platform version part of the key.
func (k Key) Version() string {
	_, version := k.split()
	return version
}

func (k Key) split() (string, string) {
	i := strings.LastIndex(string(k), ":")
	if i < 0 {
		return string(k), ""
	}
	return string(k[:i]), string(k[i+1:])
}

// Buckets maps a category to its set of canonical keys.
type Buckets map[Category]set.Ordered[Key]

// Add inserts keys into the bucket of the given category, creating it if needed.
func (b Buckets) Add(c Category, keys ...Key) {
	bucket, ok := b[c]
	if !ok {
		bucket = set.NewOrdered[Key]()
		b[c] = bucket
	}
	bucket.Append(keys...)
}

// Union adds every key of other into b.
func (b Buckets) Union(other Buckets) {
	for c, keys := range other {
		b.Add(c, keys.Values()...)
	}
}

// Record is the normalized form of one advisory.
// It only ever grows: re-normalizing with more platform versions unions into it.
type Record struct {
	ProductStatus    Buckets             `json:"product_status"`
	Remediations     Buckets             `json:"remediations"`
	PlatformVersions set.Ordered[string] `json:"platform_versions"`
}

func NewRecord(versions ...string) Record {
	return Record{
		ProductStatus:    Buckets{},
		Remediations:     Buckets{},
		PlatformVersions: set.NewOrdered(versions...),
	}
}

func (r *Record) buckets(c Category) Buckets {
	switch c.Kind() {
	case KindStatus:
		if r.ProductStatus == nil {
			r.ProductStatus = Buckets{}
		}
		return r.ProductStatus
	case KindRemediation:
		if r.Remediations == nil {
			r.Remediations = Buckets{}
		}
		return r.Remediations
	}
	return nil
}

// Add inserts keys into the bucket of the given category.
// Unknown categories are ignored.
func (r *Record) Add(c Category, keys ...Key) {
	if b := r.buckets(c); b != nil {
		b.Add(c, keys...)
	}
}

// Bucket returns the keys of the given category. The result may be empty but is never nil-mapped.
func (r Record) Bucket(c Category) set.Ordered[Key] {
	var b Buckets
	switch c.Kind() {
	case KindStatus:
		b = r.ProductStatus
	case KindRemediation:
		b = r.Remediations
	}
	if keys, ok := b[c]; ok {
		return keys
	}
	return set.NewOrdered[Key]()
}

// Categories returns the categories present in the record, statuses first.
func (r Record) Categories() []Category {
	var categories []Category
	for _, c := range StatusCategories() {
		if _, ok := r.ProductStatus[c]; ok {
			categories = append(categories, c)
		}
	}
	for _, c := range RemediationCategories() {
		if _, ok := r.Remediations[c]; ok {
			categories = append(categories, c)
		}
	}
	return categories
}

// Union merges other into r. Nothing already present in r is removed.
func (r *Record) Union(other Record) {
	if r.ProductStatus == nil {
		r.ProductStatus = Buckets{}
	}
	if r.Remediations == nil {
		r.Remediations = Buckets{}
	}
	if r.PlatformVersions.Set.Len() == 0 {
		r.PlatformVersions = r.PlatformVersions.Clone()
	}
	r.ProductStatus.Union(other.ProductStatus)
	r.Remediations.Union(other.Remediations)
	r.PlatformVersions.Append(other.PlatformVersions.Values()...)
}

// ExcludeWorkarounds drops from the workaround bucket every key already covered
// by vendor_fix, no_fix_planned or none_available.
func (r *Record) ExcludeWorkarounds() {
	workaround, ok := r.Remediations[CategoryWorkaround]
	if !ok {
		return
	}
	for _, c := range []Category{CategoryVendorFix, CategoryNoFixPlanned, CategoryNoneAvailable} {
		if covered, ok := r.Remediations[c]; ok {
			workaround.Subtract(covered.Set)
		}
	}
}

// KeyCount returns the number of keys over all buckets.
func (r Record) KeyCount() int {
	var n int
	for _, keys := range r.ProductStatus {
		n += keys.Len()
	}
	for _, keys := range r.Remediations {
		n += keys.Len()
	}
	return n
}
