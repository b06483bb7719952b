package types

// Metadata mirrors the per-crate METADATA file.
type Metadata struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	ThirdParty  ThirdPartyMetadata `yaml:"third_party"`
}

type ThirdPartyMetadata struct {
	Version         string       `yaml:"version"`
	License         string       `yaml:"license,omitempty"`
	LicenseType     string       `yaml:"license_type,omitempty"`
	LastUpgradeDate Date         `yaml:"last_upgrade_date"`
	Homepage        string       `yaml:"homepage,omitempty"`
	Identifiers     []Identifier `yaml:"identifier,omitempty"`
}

type Date struct {
	Year  int `yaml:"year"`
	Month int `yaml:"month"`
	Day   int `yaml:"day"`
}

type Identifier struct {
	Type    string `yaml:"type"`
	Value   string `yaml:"value"`
	Version string `yaml:"version,omitempty"`
}
