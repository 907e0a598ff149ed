package reducer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocsaf/csaf/v3/csaf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/reducer"
	"github.com/vulnkit/vulnkit/pkg/types"
)

func decodeFile(t *testing.T, name string) (*csaf.Advisory, error) {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()
	return reducer.Decode(f)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{
			name: "happy path",
			file: "cve-2025-0001.json",
		},
		{
			name:    "array payload",
			file:    "array.json",
			wantErr: true,
		},
		{
			name:    "truncated",
			file:    "truncated.json",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := decodeFile(t, tt.file)
			if tt.wantErr {
				require.ErrorIs(t, err, reducer.ErrMalformedAdvisory)
				return
			}
			require.NoError(t, err)
			assert.Len(t, adv.Vulnerabilities, 1)
		})
	}
}

func TestReduce(t *testing.T) {
	type buckets map[types.Category][]types.Key
	tests := []struct {
		name             string
		file             string
		versions         []string
		wantStatus       buckets
		wantRemediations buckets
		wantUnparseable  int
		wantErr          error
	}{
		{
			name:     "two-part id for the requested version",
			file:     "cve-2025-0001.json",
			versions: []string{"8"},
			wantStatus: buckets{
				types.CategoryFixed: {"mypkg:8"},
			},
			wantRemediations: buckets{},
		},
		{
			name:     "two-part id for another version",
			file:     "cve-2025-0001.json",
			versions: []string{"9"},
			wantStatus: buckets{
				types.CategoryFixed: {},
			},
			wantRemediations: buckets{},
		},
		{
			name:     "mixed shapes and remediations",
			file:     "cve-2024-10041.json",
			versions: []string{"8", "9"},
			wantStatus: buckets{
				types.CategoryFixed:            {"pam:8", "pam:9"},
				types.CategoryKnownAffected:    {"skopeo:9"},
				types.CategoryKnownNotAffected: {},
			},
			wantRemediations: buckets{
				types.CategoryVendorFix:     {"pam:9"},
				types.CategoryWorkaround:    {"skopeo:9"},
				types.CategoryNoneAvailable: {},
			},
			wantUnparseable: 1,
		},
		{
			name:     "workaround covered by none_available",
			file:     "cve-2024-10041.json",
			versions: []string{"7"},
			wantStatus: buckets{
				types.CategoryFixed:            {},
				types.CategoryKnownAffected:    {"pam:7"},
				types.CategoryKnownNotAffected: {},
			},
			wantRemediations: buckets{
				types.CategoryVendorFix:     {},
				types.CategoryWorkaround:    {},
				types.CategoryNoneAvailable: {"pam:7"},
			},
			wantUnparseable: 1,
		},
		{
			name:     "no vulnerabilities",
			file:     "no-vulnerabilities.json",
			versions: []string{"8"},
			wantErr:  reducer.ErrMalformedAdvisory,
		},
		{
			name:     "null vulnerability",
			file:     "null-vulnerability.json",
			versions: []string{"8"},
			wantErr:  reducer.ErrMalformedAdvisory,
		},
		{
			name:     "no product status",
			file:     "no-product-status.json",
			versions: []string{"8"},
			wantErr:  reducer.ErrMalformedAdvisory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := decodeFile(t, tt.file)
			require.NoError(t, err)

			got, err := reducer.Reduce(adv, normalize.NewPlatforms(tt.versions...))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.versions, got.Record.PlatformVersions.Values())
			assert.Equal(t, tt.wantUnparseable, got.Unparseable)

			gotStatus := buckets{}
			for c, keys := range got.Record.ProductStatus {
				gotStatus[c] = keys.Values()
			}
			gotRemediations := buckets{}
			for c, keys := range got.Record.Remediations {
				gotRemediations[c] = keys.Values()
			}
			assert.Equal(t, tt.wantStatus, gotStatus)
			assert.Equal(t, tt.wantRemediations, gotRemediations)
		})
	}
}

func TestReduce_WorkaroundExclusion(t *testing.T) {
	adv, err := reducer.Decode(strings.NewReader(`{
		"vulnerabilities": [{
			"cve": "CVE-2025-0004",
			"product_status": {},
			"remediations": [
				{"category": "vendor_fix", "product_ids": ["red_hat_enterprise_linux_8:a"]},
				{"category": "workaround", "product_ids": ["red_hat_enterprise_linux_8:a", "red_hat_enterprise_linux_8:b"]},
				{"category": "no_fix_planned", "product_ids": []},
				{"category": "none_available", "product_ids": []}
			]
		}]
	}`))
	require.NoError(t, err)

	got, err := reducer.Reduce(adv, normalize.NewPlatforms("8"))
	require.NoError(t, err)
	assert.Equal(t, []types.Key{"b:8"}, got.Record.Bucket(types.CategoryWorkaround).Values())
	assert.Equal(t, []types.Key{"a:8"}, got.Record.Bucket(types.CategoryVendorFix).Values())
}
