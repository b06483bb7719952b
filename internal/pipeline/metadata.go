package pipeline

import (
	"fmt"
	"strings"
	"time"

	"crate-tool/internal/types"
)

const (
	identifierArchive  = "Archive"
	identifierHomepage = "Homepage"
	identifierURL      = "URL"
)

func cratesIOHomepage(name string) string {
	return "https://crates.io/crates/" + name
}

func cratesIOArchive(name string, version string) string {
	return fmt.Sprintf("https://static.crates.io/crates/%s/%s-%s.crate", name, name, version)
}

// NewMetadata seeds METADATA for a freshly imported crate.
func NewMetadata(name string, version string, description string, licenseType string, today time.Time) types.Metadata {
	metadata := types.Metadata{
		Name:        name,
		Description: strings.TrimSpace(description),
		ThirdParty: types.ThirdPartyMetadata{
			LicenseType: strings.ToUpper(licenseType),
		},
	}
	setVersionAndURLs(&metadata, name, version, today)
	return metadata
}

// RefreshMetadata normalizes metadata and, when version differs from the
// recorded version, moves it to version dated today. It reports whether
// anything changed.
func RefreshMetadata(metadata *types.Metadata, name string, version string, today time.Time) bool {
	changed := false
	if upper := strings.ToUpper(metadata.ThirdParty.LicenseType); upper != metadata.ThirdParty.LicenseType {
		metadata.ThirdParty.LicenseType = upper
		changed = true
	}
	if metadata.ThirdParty.Homepage == "" {
		metadata.ThirdParty.Homepage = cratesIOHomepage(name)
		changed = true
	}
	kept := metadata.ThirdParty.Identifiers[:0]
	for _, id := range metadata.ThirdParty.Identifiers {
		if id.Type == identifierURL || id.Type == identifierHomepage {
			changed = true
			continue
		}
		kept = append(kept, id)
	}
	metadata.ThirdParty.Identifiers = kept
	if metadata.ThirdParty.Version != version {
		setVersionAndURLs(metadata, name, version, today)
		changed = true
	}
	return changed
}

func setVersionAndURLs(metadata *types.Metadata, name string, version string, today time.Time) {
	metadata.ThirdParty.Version = version
	metadata.ThirdParty.Homepage = cratesIOHomepage(name)
	metadata.ThirdParty.LastUpgradeDate = types.Date{Year: today.Year(), Month: int(today.Month()), Day: today.Day()}
	archive := types.Identifier{Type: identifierArchive, Value: cratesIOArchive(name, version), Version: version}
	for i, id := range metadata.ThirdParty.Identifiers {
		if id.Type == identifierArchive {
			metadata.ThirdParty.Identifiers[i] = archive
			return
		}
	}
	metadata.ThirdParty.Identifiers = append(metadata.ThirdParty.Identifiers, archive)
}
