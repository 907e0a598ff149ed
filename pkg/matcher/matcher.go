package matcher

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/types"
)

// NotInVuln is the status of a package which matched the advisory for another version only.
const NotInVuln = "not_in_vuln"

// Corpus gives read-only access to normalized records.
type Corpus interface {
	Advisories() []types.AdvisoryID
	Record(id types.AdvisoryID) (types.Record, error)
}

// Matches holds the matched keys of one advisory per category.
type Matches map[types.Category]set.Ordered[types.Key]

type Result struct {
	// Packages are the distinct package names matched against, sorted.
	Packages []string
	// Versions are the platform versions matched against, in the requested order.
	Versions []string

	// Advisories maps a version to the advisories with at least one match, and their matched keys.
	Advisories map[string]map[types.AdvisoryID]Matches
	// Affected maps a version to the packages affected, and the advisories affecting them.
	// Matches in excluded categories are left out.
	Affected map[string]map[string]set.Ordered[types.AdvisoryID]

	// Failed lists the advisories whose record could not be loaded.
	Failed []types.AdvisoryID

	policy Policy
}

// Row is one line of the advisory/package table.
type Row struct {
	Advisory types.AdvisoryID
	Package  string
	// Statuses holds the first matching category in priority order per version, or NotInVuln.
	// It is aligned with Result.Versions.
	Statuses []string
	// Affected is false when every match of the package is in an excluded category.
	Affected bool
}

// Count is the number of advisories affecting a package, aligned with Result.Versions.
type Count struct {
	Package    string
	Advisories []int
}

// Match intersects each category of each record in the corpus with {package:version} per requested version.
func Match(ctx context.Context, packages, versions []string, corpus Corpus, policy Policy) (*Result, error) {
	versions = lo.Uniq(lo.Compact(lo.Map(versions, func(v string, _ int) string { return strings.TrimSpace(v) })))
	if len(versions) == 0 {
		return nil, oops.Errorf("no platform versions to match")
	}
	names := set.NewOrdered(lo.Compact(lo.Map(packages, func(p string, _ int) string { return strings.TrimSpace(p) }))...)

	res := &Result{
		Packages:   names.Values(),
		Versions:   versions,
		Advisories: map[string]map[types.AdvisoryID]Matches{},
		Affected:   map[string]map[string]set.Ordered[types.AdvisoryID]{},
		policy:     policy,
	}

	keys := map[string]set.Ordered[types.Key]{}
	for _, v := range versions {
		keys[v] = set.NewOrdered(lo.Map(res.Packages, func(name string, _ int) types.Key {
			return types.NewKey(name, v)
		})...)
		res.Advisories[v] = map[types.AdvisoryID]Matches{}
		res.Affected[v] = map[string]set.Ordered[types.AdvisoryID]{}
	}

	for _, id := range corpus.Advisories() {
		if err := ctx.Err(); err != nil {
			return nil, oops.Wrapf(err, "match cancelled")
		}

		rec, err := corpus.Record(id)
		if err != nil {
			log.Debug("Skipping an unreadable record", log.AdvisoryID(id), log.Err(err))
			res.Failed = append(res.Failed, id)
			continue
		}

		for _, c := range rec.Categories() {
			bucket := rec.Bucket(c)
			for _, v := range versions {
				matched := bucket.Intersect(keys[v])
				if matched.Len() == 0 {
					continue
				}
				res.add(v, id, c, matched)
			}
		}
	}

	if len(res.Failed) > 0 {
		log.Warn("Some records could not be loaded", log.Int("count", len(res.Failed)))
	}
	return res, nil
}

func (r *Result) add(version string, id types.AdvisoryID, c types.Category, matched set.Ordered[types.Key]) {
	matches, ok := r.Advisories[version][id]
	if !ok {
		matches = Matches{}
		r.Advisories[version][id] = matches
	}
	matches[c] = matched

	if r.policy.excluded(c) {
		return
	}
	for _, key := range matched.Values() {
		advisories, ok := r.Affected[version][key.Name()]
		if !ok {
			advisories = set.NewOrdered[types.AdvisoryID]()
			r.Affected[version][key.Name()] = advisories
		}
		advisories.Append(id)
	}
}

// AdvisoryIDs returns the advisories with a match for any version, sorted.
func (r *Result) AdvisoryIDs() []types.AdvisoryID {
	ids := set.NewOrdered[types.AdvisoryID]()
	for _, advisories := range r.Advisories {
		for id := range advisories {
			ids.Append(id)
		}
	}
	return ids.Values()
}

// Rows returns one row per matched advisory and package, sorted by advisory then package.
func (r *Result) Rows() []Row {
	order := r.policy.Order()

	var rows []Row
	for _, id := range r.AdvisoryIDs() {
		names := set.NewOrdered[string]()
		for _, v := range r.Versions {
			for _, matched := range r.Advisories[v][id] {
				for _, key := range matched.Values() {
					names.Append(key.Name())
				}
			}
		}

		for _, name := range names.Values() {
			row := Row{
				Advisory: id,
				Package:  name,
				Statuses: make([]string, 0, len(r.Versions)),
			}
			for _, v := range r.Versions {
				status, affected := r.status(r.Advisories[v][id], types.NewKey(name, v), order)
				row.Statuses = append(row.Statuses, status)
				row.Affected = row.Affected || affected
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// status returns the first category in order holding the key, and whether any non-excluded category holds it.
func (r *Result) status(matches Matches, key types.Key, order []types.Category) (string, bool) {
	status := NotInVuln
	var affected bool
	for _, c := range order {
		matched, ok := matches[c]
		if !ok || !matched.Contains(key) {
			continue
		}
		if status == NotInVuln {
			status = c.String()
		}
		if !r.policy.excluded(c) {
			affected = true
		}
	}
	return status, affected
}

// Counts returns, for every requested package, how many advisories affect it per version.
func (r *Result) Counts() []Count {
	counts := make([]Count, 0, len(r.Packages))
	for _, name := range r.Packages {
		count := Count{
			Package:    name,
			Advisories: make([]int, 0, len(r.Versions)),
		}
		for _, v := range r.Versions {
			count.Advisories = append(count.Advisories, r.Affected[v][name].Len())
		}
		counts = append(counts, count)
	}
	return counts
}

// AffectedBy returns the advisories affecting the package for any version, sorted.
func (r *Result) AffectedBy(name string) []types.AdvisoryID {
	ids := set.NewOrdered[types.AdvisoryID]()
	for _, v := range r.Versions {
		if advisories, ok := r.Affected[v][name]; ok {
			ids.Union(advisories.Set)
		}
	}
	return ids.Values()
}
