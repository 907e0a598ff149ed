package annotate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gocsaf/csaf/v3/csaf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnkit/vulnkit/pkg/annotate"
	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/reducer"
	"github.com/vulnkit/vulnkit/pkg/types"
)

func load(id types.AdvisoryID) (*csaf.Advisory, error) {
	f, err := os.Open(filepath.Join("testdata", id.String()+".json"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reducer.Decode(f)
}

func TestNewMode(t *testing.T) {
	tests := []struct {
		in         string
		want       annotate.Mode
		wantHeader string
	}{
		{in: "remediations", want: annotate.ModeRemediations, wantHeader: "details"},
		{in: "Status", want: annotate.ModeStatus, wantHeader: "status"},
		{in: "severity", want: annotate.ModeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := annotate.NewMode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantHeader, got.Header())
		})
	}
}

func TestAnnotator_Field(t *testing.T) {
	adv, err := load("cve-2024-10041")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mode    annotate.Mode
		version string
		pkg     string
		adv     *csaf.Advisory
		want    string
	}{
		{
			name:    "vendor fix from a NEVRA",
			mode:    annotate.ModeRemediations,
			version: "9",
			pkg:     "pam-1.5.1-21.el9_5.x86_64",
			adv:     adv,
			want:    "vendor_fix",
		},
		{
			name:    "workaround",
			mode:    annotate.ModeRemediations,
			version: "9",
			pkg:     "skopeo",
			adv:     adv,
			want:    "workaround",
		},
		{
			name:    "status of a package URL",
			mode:    annotate.ModeStatus,
			version: "8",
			pkg:     "pkg:rpm/redhat/pam@1.3.1-36.el8_10?arch=x86_64",
			adv:     adv,
			want:    "fixed",
		},
		{
			name:    "other platform",
			mode:    annotate.ModeRemediations,
			version: "7",
			pkg:     "skopeo",
			adv:     adv,
			want:    annotate.NotFound,
		},
		{
			name:    "unreadable advisory",
			mode:    annotate.ModeStatus,
			version: "8",
			pkg:     "pam",
			want:    annotate.AdvisoryError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := annotate.New([]string{tt.version}, matcher.DefaultPolicy(), tt.mode)
			assert.Equal(t, []string{tt.want}, a.Fields(tt.pkg, tt.adv))
		})
	}
}

func TestAnnotator_Annotate(t *testing.T) {
	rows := annotate.ParseRows([]map[string]string{
		{"CVE": "CVE-2024-10041", "COTS": "pam-1.5.1-21.el9_5.x86_64"},
		{"CVE": "cve-2024-10041", "COTS": " skopeo "},
		{"CVE": "", "COTS": "pam"},
		{"CVE": "CVE-2024-0002", "COTS": "pam"},
		{"CVE": "CVE-2024-9999", "COTS": "pam"},
		{"CVE": "CVE-2024-9999", "COTS": ""},
	})
	require.Len(t, rows, 4)
	assert.Equal(t, []types.AdvisoryID{"cve-2024-10041", "cve-2024-0002", "cve-2024-9999"}, annotate.Advisories(rows))

	a := annotate.New([]string{"8", "9"}, matcher.DefaultPolicy(), annotate.ModeRemediations, annotate.ModeUnknown, annotate.ModeStatus)
	got := a.Annotate("annotated", rows, load)

	assert.Equal(t, "annotated", got.Name)
	assert.Equal(t, []string{"CVE", "COTS", "details RHEL 8", "details RHEL 9", "status RHEL 8", "status RHEL 9"}, got.Header)

	e := annotate.AdvisoryError
	assert.Equal(t, [][]any{
		{"cve-2024-10041", "pam-1.5.1-21.el9_5.x86_64", "not_found", "vendor_fix", "fixed", "fixed"},
		{"cve-2024-10041", "skopeo", "not_found", "workaround", "not_found", "known_affected"},
		{"cve-2024-0002", "pam", e, e, e, e},
		{"cve-2024-9999", "pam", e, e, e, e},
	}, got.Rows)
}
