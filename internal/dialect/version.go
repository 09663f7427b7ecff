package dialect

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a product's major/minor version. The zero value means unknown.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsZero reports whether the version is unknown.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

var versionPattern = regexp.MustCompile(`(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first "major[.minor]" number pair from a
// product version string such as "PostgreSQL 16.2 on x86_64".
func ParseVersion(s string) Version {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}
	}
	major, _ := strconv.Atoi(m[1])
	minor := 0
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	return Version{Major: major, Minor: minor}
}
