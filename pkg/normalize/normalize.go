package normalize

import (
	"strings"

	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/types"
)

const platformPrefix = "red_hat_enterprise_linux_"

var (
	// ErrNotApplicable means the identifier is well-formed but belongs to another platform version.
	ErrNotApplicable = xerrors.New("identifier does not apply to the platform")
	// ErrMalformed means the identifier has none of the known shapes.
	ErrMalformed = xerrors.New("malformed identifier")
)

// Platform describes one RHEL major version and the tokens identifying it in product IDs.
type Platform struct {
	// Version is the major version, e.g. "8".
	Version string
	// Prefix is the platform name used by two-part IDs, e.g. "red_hat_enterprise_linux_8".
	Prefix string
	// Marker is the dist tag found in the version-release-arch of three-part IDs, e.g. "el8".
	Marker string
}

func NewPlatform(version string) Platform {
	version = strings.TrimSpace(version)
	return Platform{
		Version: version,
		Prefix:  platformPrefix + version,
		Marker:  "el" + version,
	}
}

// NewPlatforms builds one Platform per version, keeping the given order.
func NewPlatforms(versions ...string) []Platform {
	platforms := make([]Platform, 0, len(versions))
	for _, v := range versions {
		platforms = append(platforms, NewPlatform(v))
	}
	return platforms
}

// Normalize reduces a vendor product ID to a canonical key for the platform.
//
// Two shapes are understood:
//
//	red_hat_enterprise_linux_8:container-tools/podman       -> podman:8
//	AppStream-8.10.0.Z.MAIN:podman-3:4.9.4-12.el8_10.x86_64 -> podman:8
//
// Anything else yields ErrMalformed, a known shape for a different platform yields ErrNotApplicable.
func Normalize(rawID string, p Platform) (types.Key, error) {
	parts := strings.Split(rawID, ":")
	for _, part := range parts {
		if part == "" {
			return "", xerrors.Errorf("%q: %w", rawID, ErrMalformed)
		}
	}

	switch len(parts) {
	case 2:
		// <platform-name>:<package-name>
		platform, name := parts[0], parts[1]
		if platform != p.Prefix {
			return "", ErrNotApplicable
		}
		name = name[strings.LastIndex(name, "/")+1:]
		if name == "" {
			return "", xerrors.Errorf("%q: %w", rawID, ErrMalformed)
		}
		return types.NewKey(name, p.Version), nil
	case 3:
		// <subrelease>:<name>-<epoch>:<version>-<release>.<arch>
		nameEpoch, vra := parts[1], parts[2]
		if !containsMarker(vra, p.Marker) {
			return "", ErrNotApplicable
		}
		i := strings.LastIndex(nameEpoch, "-")
		if i <= 0 {
			return "", xerrors.Errorf("%q: %w", rawID, ErrMalformed)
		}
		return types.NewKey(nameEpoch[:i], p.Version), nil
	}
	return "", xerrors.Errorf("%q: %w", rawID, ErrMalformed)
}

// Match is Normalize without the error detail.
func Match(rawID string, p Platform) (types.Key, bool) {
	key, err := Normalize(rawID, p)
	if err != nil {
		return "", false
	}
	return key, true
}

// containsMarker reports whether the dist tag occurs in s and is not the head of a longer number,
// so that "el1" does not match "el10".
func containsMarker(s, marker string) bool {
	if marker == "" {
		return false
	}
	for {
		i := strings.Index(s, marker)
		if i < 0 {
			return false
		}
		end := i + len(marker)
		if end == len(s) || !isDigit(s[end]) {
			return true
		}
		s = s[end:]
	}
}

func isDigit(b byte) bool {
	return '0' <= b && b <= '9'
}
