package report

import (
	"strings"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/sheet"
	"github.com/vulnkit/vulnkit/pkg/types"
	"github.com/vulnkit/vulnkit/pkg/utils"
)

const (
	MainSheet  = "main"
	StatsSheet = "stats"

	mapsExt = ".maps.json"
)

// Maps is the JSON companion of the workbook, keyed by platform version first.
type Maps struct {
	// CVEPackages maps a version to the matched keys of every advisory, per category.
	CVEPackages map[string]map[types.AdvisoryID]matcher.Matches `json:"cve_pkg_maps"`
	// PackageCVEs maps a version to the advisories affecting every package.
	PackageCVEs map[string]map[string]set.Ordered[types.AdvisoryID] `json:"pkg_cve_maps"`
}

// MapsPath returns where the JSON maps of the workbook at output are written.
func MapsPath(output string) string {
	return strings.TrimSuffix(output, ".xlsx") + mapsExt
}

func statusHeader(v string) string {
	return "status RHEL " + v
}

func countHeader(v string) string {
	return "CVE Count RHEL " + v
}

// Sheets lays the result out as the "main" and "stats" worksheets.
func Sheets(res *matcher.Result) []sheet.Sheet {
	matches := sheet.Sheet{
		Name:   MainSheet,
		Header: append([]string{"CVE", "Package"}, lo.Map(res.Versions, func(v string, _ int) string { return statusHeader(v) })...),
	}
	for _, row := range res.Rows() {
		values := []any{row.Advisory.String(), row.Package}
		for _, status := range row.Statuses {
			values = append(values, status)
		}
		matches.Rows = append(matches.Rows, values)
	}

	counts := sheet.Sheet{
		Name:   StatsSheet,
		Header: append([]string{"Package"}, lo.Map(res.Versions, func(v string, _ int) string { return countHeader(v) })...),
	}
	for _, count := range res.Counts() {
		values := []any{count.Package}
		for _, n := range count.Advisories {
			values = append(values, n)
		}
		counts.Rows = append(counts.Rows, values)
	}

	return []sheet.Sheet{matches, counts}
}

func NewMaps(res *matcher.Result) Maps {
	return Maps{
		CVEPackages: res.Advisories,
		PackageCVEs: res.Affected,
	}
}

// Write writes the workbook to output and the maps next to it.
func Write(output string, res *matcher.Result) error {
	eb := oops.With("output", output)
	if err := sheet.Write(output, Sheets(res)...); err != nil {
		return eb.Wrapf(err, "report write error")
	}
	if err := utils.WriteJSONFile(NewMaps(res), MapsPath(output)); err != nil {
		return eb.Wrapf(err, "maps write error")
	}
	return nil
}
