package matcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/types"
)

type fakeCorpus map[types.AdvisoryID]*types.Record

func (c fakeCorpus) Advisories() []types.AdvisoryID {
	ids := set.NewOrdered[types.AdvisoryID]()
	for id := range c {
		ids.Append(id)
	}
	return ids.Values()
}

func (c fakeCorpus) Record(id types.AdvisoryID) (types.Record, error) {
	rec := c[id]
	if rec == nil {
		return types.Record{}, xerrors.New("unreadable")
	}
	return *rec, nil
}

func newRecord(buckets map[types.Category][]types.Key, versions ...string) *types.Record {
	rec := types.NewRecord(versions...)
	for c, keys := range buckets {
		rec.Add(c, keys...)
	}
	return &rec
}

func TestMatch(t *testing.T) {
	corpus := fakeCorpus{
		"cve-2025-0001": newRecord(map[types.Category][]types.Key{
			types.CategoryFixed: {"mypkg:8"},
		}, "8"),
		"cve-2024-10041": newRecord(map[types.Category][]types.Key{
			types.CategoryFixed:            {"pam:8", "pam:9"},
			types.CategoryKnownNotAffected: {"skopeo:9"},
			types.CategoryVendorFix:        {"pam:9"},
			types.CategoryWorkaround:       {"pam:8", "pam:9"},
		}, "8", "9"),
		"cve-2024-0002": newRecord(map[types.Category][]types.Key{
			types.CategoryKnownAffected: {"other:8"},
		}, "8"),
		"cve-2024-0003": nil,
	}

	tests := []struct {
		name       string
		packages   []string
		versions   []string
		policy     matcher.Policy
		wantRows   []matcher.Row
		wantCounts []matcher.Count
	}{
		{
			name:     "fixed for the requested version",
			packages: []string{"mypkg"},
			versions: []string{"8"},
			policy:   matcher.DefaultPolicy(),
			wantRows: []matcher.Row{
				{Advisory: "cve-2025-0001", Package: "mypkg", Statuses: []string{"fixed"}, Affected: true},
			},
			wantCounts: []matcher.Count{
				{Package: "mypkg", Advisories: []int{1}},
			},
		},
		{
			name:       "prefix mismatch",
			packages:   []string{"mypkg"},
			versions:   []string{"9"},
			policy:     matcher.DefaultPolicy(),
			wantCounts: []matcher.Count{{Package: "mypkg", Advisories: []int{0}}},
		},
		{
			name:     "priority and not_in_vuln",
			packages: []string{"pam", "skopeo", " ", "pam"},
			versions: []string{"8", "9"},
			policy:   matcher.DefaultPolicy(),
			wantRows: []matcher.Row{
				{Advisory: "cve-2024-10041", Package: "pam", Statuses: []string{"workaround", "vendor_fix"}, Affected: true},
				{Advisory: "cve-2024-10041", Package: "skopeo", Statuses: []string{matcher.NotInVuln, "known_not_affected"}, Affected: true},
			},
			wantCounts: []matcher.Count{
				{Package: "pam", Advisories: []int{1, 1}},
				{Package: "skopeo", Advisories: []int{0, 1}},
			},
		},
		{
			name:     "excluded category",
			packages: []string{"skopeo"},
			versions: []string{"9"},
			policy: matcher.Policy{
				Priority: matcher.DefaultPolicy().Priority,
				Exclude:  set.New(types.CategoryKnownNotAffected, types.CategoryUnderInvestigation),
			},
			wantRows: []matcher.Row{
				{Advisory: "cve-2024-10041", Package: "skopeo", Statuses: []string{"known_not_affected"}, Affected: false},
			},
			wantCounts: []matcher.Count{{Package: "skopeo", Advisories: []int{0}}},
		},
		{
			name:     "caller defined priority",
			packages: []string{"pam"},
			versions: []string{"9"},
			policy: matcher.Policy{
				Priority: []types.Category{types.CategoryFixed},
			},
			wantRows: []matcher.Row{
				{Advisory: "cve-2024-10041", Package: "pam", Statuses: []string{"fixed"}, Affected: true},
			},
			wantCounts: []matcher.Count{{Package: "pam", Advisories: []int{1}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matcher.Match(context.Background(), tt.packages, tt.versions, corpus, tt.policy)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRows, got.Rows())
			assert.Equal(t, tt.wantCounts, got.Counts())
			assert.Equal(t, []types.AdvisoryID{"cve-2024-0003"}, got.Failed)
		})
	}
}

func TestMatch_Maps(t *testing.T) {
	corpus := fakeCorpus{
		"cve-2024-10041": newRecord(map[types.Category][]types.Key{
			types.CategoryFixed:            {"pam:8", "pam:9"},
			types.CategoryKnownNotAffected: {"skopeo:9"},
		}, "8", "9"),
	}
	policy := matcher.DefaultPolicy()
	policy.Exclude = set.New(types.CategoryKnownNotAffected)

	got, err := matcher.Match(context.Background(), []string{"pam", "skopeo"}, []string{"8", "9"}, corpus, policy)
	require.NoError(t, err)

	matches := got.Advisories["9"]["cve-2024-10041"]
	require.Contains(t, matches, types.CategoryKnownNotAffected)
	assert.Equal(t, []types.Key{"skopeo:9"}, matches[types.CategoryKnownNotAffected].Values())
	assert.Equal(t, []types.Key{"pam:9"}, matches[types.CategoryFixed].Values())

	// excluded matches stay out of the reverse index
	assert.NotContains(t, got.Affected["9"], "skopeo")
	assert.Equal(t, []types.AdvisoryID{"cve-2024-10041"}, got.AffectedBy("pam"))
	assert.Empty(t, got.AffectedBy("skopeo"))
	assert.Equal(t, []types.AdvisoryID{"cve-2024-10041"}, got.AdvisoryIDs())
}

func TestMatch_Errors(t *testing.T) {
	_, err := matcher.Match(context.Background(), []string{"pam"}, []string{" "}, fakeCorpus{}, matcher.DefaultPolicy())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = matcher.Match(ctx, []string{"pam"}, []string{"8"}, fakeCorpus{"cve-2025-0001": newRecord(nil, "8")}, matcher.DefaultPolicy())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Order(t *testing.T) {
	p := matcher.Policy{
		Priority: []types.Category{types.CategoryFixed, types.CategoryUnknown, types.CategoryFixed, types.CategoryVendorFix},
	}
	got := p.Order()
	assert.Equal(t, []types.Category{types.CategoryFixed, types.CategoryVendorFix, types.CategoryFirstAffected}, got[:3])
	assert.Len(t, got, len(types.StatusCategories())+len(types.RemediationCategories()))
	assert.ElementsMatch(t, append(types.StatusCategories(), types.RemediationCategories()...), got)

	assert.Equal(t, matcher.DefaultPolicy().Priority, matcher.DefaultPolicy().Order())
}
