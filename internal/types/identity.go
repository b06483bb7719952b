package types

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ZanzyTHEbar/errbuilder-go"
)

// CrateIdentity is the (name, version) key of a crate. It is a plain
// comparable value and is used directly as a map key.
type CrateIdentity struct {
	Name    string
	Version semver.Version
}

// NewCrateIdentity parses version strictly and canonicalizes it so two
// identities built from equivalent strings compare equal with ==.
func NewCrateIdentity(name string, version string) (CrateIdentity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CrateIdentity{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("crate name is empty")
	}
	parsed, err := ParseVersion(version)
	if err != nil {
		return CrateIdentity{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid version %q for crate %s", version, name)).
			WithCause(err)
	}
	return CrateIdentity{Name: name, Version: parsed}, nil
}

// ParseVersion parses a strict semantic version and drops the original
// input text, leaving a canonical value.
func ParseVersion(value string) (semver.Version, error) {
	parsed, err := semver.StrictNewVersion(strings.TrimSpace(value))
	if err != nil {
		return semver.Version{}, err
	}
	return *semver.New(parsed.Major(), parsed.Minor(), parsed.Patch(), parsed.Prerelease(), parsed.Metadata()), nil
}

func (id CrateIdentity) String() string {
	return fmt.Sprintf("%s@%s", id.Name, id.Version.String())
}

// Compare orders identities by name, then by semver precedence.
func (id CrateIdentity) Compare(other CrateIdentity) int {
	if c := strings.Compare(id.Name, other.Name); c != 0 {
		return c
	}
	return CompareVersions(id.Version, other.Version)
}

func (id CrateIdentity) Less(other CrateIdentity) bool {
	return id.Compare(other) < 0
}

// CompareVersions returns -1, 0, or 1. Build metadata breaks ties so the
// order stays total over distinct map keys.
func CompareVersions(a semver.Version, b semver.Version) int {
	if c := a.Compare(&b); c != 0 {
		return c
	}
	return strings.Compare(a.Metadata(), b.Metadata())
}
