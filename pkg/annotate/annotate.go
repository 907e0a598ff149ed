package annotate

import (
	"strings"

	"github.com/gocsaf/csaf/v3/csaf"
	"github.com/samber/lo"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/reducer"
	"github.com/vulnkit/vulnkit/pkg/sheet"
	"github.com/vulnkit/vulnkit/pkg/types"
)

const (
	// AdvisoryError is the field value of rows whose advisory could not be read.
	AdvisoryError = "cve_json_error"
	// NotFound is the field value of packages absent from every category of the mode.
	NotFound = "not_found"

	AdvisoryColumn = "CVE"
	PackageColumn  = "COTS"
)

// Mode is a kind of information added to every row.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeRemediations
	ModeStatus
)

var modes = []struct {
	name   string
	header string
	kind   types.Kind
}{
	ModeUnknown:      {name: "unknown"},
	ModeRemediations: {name: "remediations", header: "details", kind: types.KindRemediation},
	ModeStatus:       {name: "status", header: "status", kind: types.KindStatus},
}

func NewMode(s string) Mode {
	for i, m := range modes {
		if strings.EqualFold(s, m.name) {
			return Mode(i)
		}
	}
	return ModeUnknown
}

func (m Mode) valid() bool {
	return m > ModeUnknown && int(m) < len(modes)
}

func (m Mode) String() string {
	if !m.valid() {
		return modes[ModeUnknown].name
	}
	return modes[m].name
}

// Header returns the column name of the mode.
func (m Mode) Header() string {
	if !m.valid() {
		return ""
	}
	return modes[m].header
}

// Row is one line of the input workbook.
type Row struct {
	Advisory types.AdvisoryID
	Package  string
}

// Annotator derives per row fields from advisories, with the same normalization as the updater.
type Annotator struct {
	platforms []normalize.Platform
	order     []types.Category
	modes     []Mode
}

func New(versions []string, policy matcher.Policy, modes ...Mode) *Annotator {
	return &Annotator{
		platforms: normalize.NewPlatforms(versions...),
		order:     policy.Order(),
		modes:     lo.Filter(modes, func(m Mode, _ int) bool { return m.valid() }),
	}
}

// Header returns the output columns: the input columns, then one per mode and platform version.
func (a *Annotator) Header() []string {
	header := []string{AdvisoryColumn, PackageColumn}
	for _, m := range a.modes {
		for _, p := range a.platforms {
			header = append(header, m.Header()+" RHEL "+p.Version)
		}
	}
	return header
}

// field returns the first category of the mode, in priority order, holding the key.
func (a *Annotator) field(m Mode, rec types.Record, key types.Key) string {
	for _, c := range a.order {
		if c.Kind() != modes[m].kind {
			continue
		}
		if rec.Bucket(c).Contains(key) {
			return c.String()
		}
	}
	return NotFound
}

// Fields returns the values of every mode and platform version for the row, in Header order.
// The advisory is reduced once for all of them.
func (a *Annotator) Fields(pkg string, adv *csaf.Advisory) []string {
	fields := make([]string, 0, len(a.modes)*len(a.platforms))

	res, err := reducer.Reduce(adv, a.platforms)
	name := normalize.PackageName(pkg)
	for _, m := range a.modes {
		for _, p := range a.platforms {
			if err != nil {
				fields = append(fields, AdvisoryError)
				continue
			}
			fields = append(fields, a.field(m, res.Record, types.NewKey(name, p.Version)))
		}
	}
	return fields
}

// Loader reads the advisory of the given ID.
type Loader func(id types.AdvisoryID) (*csaf.Advisory, error)

// Annotate loads every advisory once and lays the rows out as a worksheet.
func (a *Annotator) Annotate(name string, rows []Row, load Loader) sheet.Sheet {
	out := sheet.Sheet{
		Name:   name,
		Header: a.Header(),
	}

	advisories := map[types.AdvisoryID]*csaf.Advisory{}
	var failed int
	for _, row := range rows {
		adv, ok := advisories[row.Advisory]
		if !ok {
			var err error
			if adv, err = load(row.Advisory); err != nil {
				log.Debug("Advisory unavailable", log.AdvisoryID(row.Advisory), log.Err(err))
				adv = nil
				failed++
			}
			advisories[row.Advisory] = adv
		}

		values := []any{row.Advisory.String(), row.Package}
		for _, f := range a.Fields(row.Package, adv) {
			values = append(values, f)
		}
		out.Rows = append(out.Rows, values)
	}

	if failed > 0 {
		log.Warn("Some advisories could not be read", log.Int("count", failed))
	}
	return out
}

// ParseRows turns workbook records into rows, dropping those without an advisory or a package.
func ParseRows(records []map[string]string) []Row {
	var rows []Row
	for _, r := range records {
		row := Row{
			Advisory: types.NewAdvisoryID(r[AdvisoryColumn]),
			Package:  strings.TrimSpace(r[PackageColumn]),
		}
		if row.Advisory == "" || row.Package == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// Advisories returns the distinct advisories of the rows.
func Advisories(rows []Row) []types.AdvisoryID {
	return lo.Uniq(lo.Map(rows, func(r Row, _ int) types.AdvisoryID { return r.Advisory }))
}
