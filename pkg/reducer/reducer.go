package reducer

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gocsaf/csaf/v3/csaf"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/types"
)

var ErrMalformedAdvisory = xerrors.New("malformed advisory")

// Result is the outcome of reducing one advisory.
type Result struct {
	Record types.Record
	// Unparseable counts product IDs which had no known shape.
	Unparseable int
}

// Decode reads one CSAF VEX document.
func Decode(r io.Reader) (*csaf.Advisory, error) {
	var adv csaf.Advisory
	if err := json.NewDecoder(r).Decode(&adv); err != nil {
		return nil, oops.Code("json_decode_error").Wrapf(errors.Join(ErrMalformedAdvisory, err), "advisory decode error")
	}
	return &adv, nil
}

// Reduce normalizes the product status and remediation product IDs of the advisory for the given platforms.
// Each product ID is attributed to the first platform it normalizes for.
//
// Only the first vulnerability is read; Red Hat publishes one VEX file per CVE.
func Reduce(adv *csaf.Advisory, platforms []normalize.Platform) (Result, error) {
	if adv == nil || len(adv.Vulnerabilities) == 0 {
		return Result{}, oops.Wrapf(ErrMalformedAdvisory, "no vulnerabilities")
	}
	vuln := adv.Vulnerabilities[0]
	if vuln == nil {
		return Result{}, oops.Wrapf(ErrMalformedAdvisory, "null vulnerability")
	} else if vuln.ProductStatus == nil {
		return Result{}, oops.With("cve", lo.FromPtr(vuln.CVE)).Wrapf(ErrMalformedAdvisory, "no product status")
	}

	versions := lo.Map(platforms, func(p normalize.Platform, _ int) string { return p.Version })
	r := reduction{
		platforms: platforms,
		result:    Result{Record: types.NewRecord(versions...)},
	}

	for category, products := range productStatus(vuln.ProductStatus) {
		r.add(category, products)
	}

	for _, remediation := range vuln.Remediations {
		if remediation == nil {
			continue
		}
		category, err := types.NewCategory(string(lo.FromPtr(remediation.Category)))
		if err != nil {
			continue
		}
		r.add(category, remediation.ProductIds)
	}

	r.result.Record.ExcludeWorkarounds()
	return r.result, nil
}

type reduction struct {
	platforms []normalize.Platform
	result    Result
}

func (r *reduction) add(category types.Category, products *csaf.Products) {
	if products == nil {
		return
	}
	keys := make([]types.Key, 0, len(*products))
	for _, productID := range *products {
		if productID == nil {
			continue
		}
		if key, ok := r.normalize(string(*productID)); ok {
			keys = append(keys, key)
		}
	}
	// An empty bucket still records that the advisory carries the category.
	r.result.Record.Add(category, keys...)
}

func (r *reduction) normalize(rawID string) (types.Key, bool) {
	var malformed bool
	for _, p := range r.platforms {
		key, err := normalize.Normalize(rawID, p)
		switch {
		case err == nil:
			return key, true
		case errors.Is(err, normalize.ErrMalformed):
			malformed = true
		}
	}
	if malformed {
		r.result.Unparseable++
	}
	return "", false
}

// productStatus lists the product status buckets present in the advisory.
// cf. https://docs.oasis-open.org/csaf/csaf/v2.0/os/csaf-v2.0-os.html#3239-vulnerabilities-property---product-status
func productStatus(ps *csaf.ProductStatus) map[types.Category]*csaf.Products {
	buckets := map[types.Category]*csaf.Products{
		types.CategoryFirstAffected:      ps.FirstAffected,
		types.CategoryFirstFixed:         ps.FirstFixed,
		types.CategoryFixed:              ps.Fixed,
		types.CategoryKnownAffected:      ps.KnownAffected,
		types.CategoryKnownNotAffected:   ps.KnownNotAffected,
		types.CategoryLastAffected:       ps.LastAffected,
		types.CategoryRecommended:        ps.Recommended,
		types.CategoryUnderInvestigation: ps.UnderInvestigation,
	}
	return lo.PickBy(buckets, func(_ types.Category, products *csaf.Products) bool {
		return products != nil
	})
}
