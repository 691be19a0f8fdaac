// Package distro classifies a connected host into a package-manager family
// by inspecting /etc/os-release.
package distro

import (
	"context"
	"regexp"
	"strings"
)

// Family is a package-manager ecosystem.
type Family string

const (
	Debian  Family = "debian"
	RPM     Family = "rpm"
	Arch    Family = "arch"
	Unknown Family = "unknown"
)

// families maps os-release ID values to a Family. Kept as a table so new
// distro IDs can be added without touching call sites.
var families = map[string]Family{
	"debian":      Debian,
	"ubuntu":      Debian,
	"linuxmint":   Debian,
	"pop":         Debian,
	"fedora":      RPM,
	"rhel":        RPM,
	"centos":      RPM,
	"rocky":       RPM,
	"almalinux":   RPM,
	"ol":          RPM,
	"arch":        Arch,
	"manjaro":     Arch,
	"endeavouros": Arch,
	"arco":        Arch,
}

// Register adds or overrides an os-release ID mapping.
func Register(id string, f Family) {
	families[strings.ToLower(id)] = f
}

var idLine = regexp.MustCompile(`(?m)^ID=(.+)$`)

// MapID maps an os-release ID value to its family. The value is
// quote-stripped and lowercased; unmapped IDs are Unknown.
func MapID(id string) Family {
	id = strings.ToLower(strings.Trim(strings.TrimSpace(id), `"'`))
	if f, ok := families[id]; ok {
		return f
	}
	return Unknown
}

// ParseOSRelease extracts the family from raw /etc/os-release content.
// The first ID= line wins.
func ParseOSRelease(out string) Family {
	m := idLine.FindStringSubmatch(out)
	if m == nil {
		return Unknown
	}
	return MapID(m[1])
}

// Runner executes one remote command to completion.
type Runner interface {
	Run(ctx context.Context, cmd string) (exitCode int, stdout, stderr string, err error)
}

const osReleaseCmd = `bash -lc 'cat /etc/os-release 2>/dev/null'`

// Detect classifies the host behind r. Detection runs fresh on every
// connection; a failed or empty read yields Unknown.
func Detect(ctx context.Context, r Runner) Family {
	code, out, _, err := r.Run(ctx, osReleaseCmd)
	if err != nil || code != 0 || out == "" {
		return Unknown
	}
	return ParseOSRelease(out)
}
