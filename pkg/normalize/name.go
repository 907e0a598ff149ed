package normalize

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

var arches = map[string]struct{}{
	"x86_64":  {},
	"aarch64": {},
	"ppc64le": {},
	"ppc64":   {},
	"s390x":   {},
	"i686":    {},
	"i386":    {},
	"noarch":  {},
	"src":     {},
}

// PackageName reduces a package reference to its bare name.
//
//	openssl                                        -> openssl
//	xorg-x11-server-common-1.20.11-24.el8_10.x86_64 -> xorg-x11-server-common
//	pkg:rpm/redhat/openssl@3.0.7-1.el9?arch=x86_64  -> openssl
//
// A reference which does not look like a NEVRA is returned trimmed but otherwise untouched.
func PackageName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "pkg:") {
		if purl, err := packageurl.FromString(s); err == nil {
			return purl.Name
		}
	}
	if name, ok := splitNEVRA(s); ok {
		return name
	}
	return s
}

// splitNEVRA extracts the name from "<name>-[<epoch>:]<version>-<release>[.<arch>]".
func splitNEVRA(s string) (string, bool) {
	nvr := s
	if i := strings.LastIndex(s, "."); i > 0 {
		if _, ok := arches[s[i+1:]]; ok {
			nvr = s[:i]
		}
	}

	i := strings.LastIndex(nvr, "-")
	if i <= 0 {
		return "", false
	}
	nv, release := nvr[:i], nvr[i+1:]

	j := strings.LastIndex(nv, "-")
	if j <= 0 {
		return "", false
	}
	name, version := nv[:j], nv[j+1:]
	if _, v, ok := strings.Cut(version, ":"); ok {
		version = v
	}
	if version == "" || release == "" || !isDigit(version[0]) || !strings.ContainsAny(release, "0123456789") {
		return "", false
	}
	return name, true
}
