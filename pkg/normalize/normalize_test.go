package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/types"
)

func TestNewPlatform(t *testing.T) {
	assert.Equal(t, normalize.Platform{
		Version: "8",
		Prefix:  "red_hat_enterprise_linux_8",
		Marker:  "el8",
	}, normalize.NewPlatform(" 8 "))

	got := normalize.NewPlatforms("9", "8")
	require.Len(t, got, 2)
	assert.Equal(t, "9", got[0].Version)
	assert.Equal(t, "8", got[1].Version)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		rawID   string
		version string
		want    types.Key
		wantErr error
	}{
		{
			name:    "two-part",
			rawID:   "red_hat_enterprise_linux_8:mypkg",
			version: "8",
			want:    "mypkg:8",
		},
		{
			name:    "two-part with path",
			rawID:   "red_hat_enterprise_linux_9:container-tools/podman",
			version: "9",
			want:    "podman:9",
		},
		{
			name:    "two-part prefix mismatch",
			rawID:   "red_hat_enterprise_linux_8:mypkg",
			version: "9",
			wantErr: normalize.ErrNotApplicable,
		},
		{
			name:    "two-part prefix of a longer version",
			rawID:   "red_hat_enterprise_linux_10:mypkg",
			version: "1",
			wantErr: normalize.ErrNotApplicable,
		},
		{
			name:    "two-part other product",
			rawID:   "openshift-4:openshift4/ose-cli",
			version: "8",
			wantErr: normalize.ErrNotApplicable,
		},
		{
			name:    "two-part trailing slash",
			rawID:   "red_hat_enterprise_linux_8:tools/",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
		{
			name:    "three-part",
			rawID:   "AppStream-8.10.0.Z.MAIN:podman-3:4.9.4-12.el8_10.x86_64",
			version: "8",
			want:    "podman:8",
		},
		{
			name:    "three-part dashed name",
			rawID:   "BaseOS-9.4.0.Z.MAIN:xorg-x11-server-common-0:1.20.11-24.el9.x86_64",
			version: "9",
			want:    "xorg-x11-server-common:9",
		},
		{
			name:    "three-part marker mismatch",
			rawID:   "AppStream-8.10.0.Z.MAIN:podman-3:4.9.4-12.el8_10.x86_64",
			version: "9",
			wantErr: normalize.ErrNotApplicable,
		},
		{
			name:    "three-part marker is the head of a longer number",
			rawID:   "BaseOS-10.0:kernel-0:6.12.0-55.el10.x86_64",
			version: "1",
			wantErr: normalize.ErrNotApplicable,
		},
		{
			name:    "three-part without epoch",
			rawID:   "BaseOS-8:kernel:4.18.0-553.el8.x86_64",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
		{
			name:    "empty segment",
			rawID:   "red_hat_enterprise_linux_8:",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
		{
			name:    "no delimiter",
			rawID:   "mypkg",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
		{
			name:    "too many segments",
			rawID:   "AppStream-8.6.0.Z.EUS:nodejs:18:8060020230203113314:ad008a3a",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
		{
			name:    "empty",
			rawID:   "",
			version: "8",
			wantErr: normalize.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalize.Normalize(tt.rawID, normalize.NewPlatform(tt.version))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch(t *testing.T) {
	key, ok := normalize.Match("red_hat_enterprise_linux_8:mypkg", normalize.NewPlatform("8"))
	assert.True(t, ok)
	assert.Equal(t, types.Key("mypkg:8"), key)

	key, ok = normalize.Match("red_hat_enterprise_linux_8:mypkg", normalize.NewPlatform("9"))
	assert.False(t, ok)
	assert.Empty(t, key)

	_, ok = normalize.Match("::", normalize.NewPlatform("8"))
	assert.False(t, ok)
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "openssl", want: "openssl"},
		{in: "  python3-libs ", want: "python3-libs"},
		{in: "xorg-x11-server-common-1.20.11-24.el8_10.x86_64", want: "xorg-x11-server-common"},
		{in: "kernel-4.18.0-553.el8.x86_64", want: "kernel"},
		{in: "openssl-3.0.7-1.el9", want: "openssl"},
		{in: "bind-utils-32:9.11.36-16.el8_10.2.noarch", want: "bind-utils"},
		{in: "pkg:rpm/redhat/openssl@3.0.7-1.el9?arch=x86_64", want: "openssl"},
		{in: "foo-bar-baz", want: "foo-bar-baz"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.PackageName(tt.in))
		})
	}
}
