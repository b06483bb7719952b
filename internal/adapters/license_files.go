package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

// licenseFileNames maps a normalized file name to the license it carries.
var licenseFileNames = map[string]string{
	"LICENSE-APACHE":       "Apache-2.0",
	"LICENSE-APACHE-2.0":   "Apache-2.0",
	"LICENSE-APACHE2":      "Apache-2.0",
	"APACHE-LICENSE":       "Apache-2.0",
	"LICENSE-MIT":          "MIT",
	"MIT-LICENSE":          "MIT",
	"LICENSE-BSD":          "BSD-3-Clause",
	"LICENSE-BSD-3-CLAUSE": "BSD-3-Clause",
	"LICENSE-BSD-2-CLAUSE": "BSD-2-Clause",
	"LICENSE-ISC":          "ISC",
	"LICENSE-ZLIB":         "Zlib",
	"LICENSE-BOOST":        "BSL-1.0",
	"LICENSE-BSL":          "BSL-1.0",
	"LICENSE-0BSD":         "0BSD",
	"LICENSE-MPL":          "MPL-2.0",
	"LICENSE-MPL-2.0":      "MPL-2.0",
	"LICENSE-UNICODE":      "Unicode-3.0",
	"UNLICENSE":            "Unlicense",
	"LICENSE-UNLICENSE":    "Unlicense",
	"LICENSE-CC0":          "CC0-1.0",
}

// genericLicenseNames carry whatever single license the crate declares.
var genericLicenseNames = map[string]bool{
	"LICENSE":   true,
	"LICENCE":   true,
	"COPYING":   true,
	"COPYRIGHT": true,
}

var licensePreference = []string{"Apache-2.0", "MIT", "BSD-3-Clause", "BSD-2-Clause", "ISC", "Zlib", "0BSD", "Unlicense", "MPL-2.0"}

// licenseTypes orders the METADATA license types from most to least
// restrictive.
var licenseTypes = []string{"UNKNOWN", "BY_EXCEPTION_ONLY", "RESTRICTED", "RESTRICTED_IF_STATICALLY_LINKED", "RECIPROCAL", "NOTICE", "PERMISSIVE"}

var licenseTypeOf = map[string]string{
	"Apache-2.0":   "NOTICE",
	"MIT":          "NOTICE",
	"BSD-2-Clause": "NOTICE",
	"BSD-3-Clause": "NOTICE",
	"ISC":          "NOTICE",
	"Zlib":         "NOTICE",
	"BSL-1.0":      "NOTICE",
	"Unicode-3.0":  "NOTICE",
	"0BSD":         "PERMISSIVE",
	"Unlicense":    "PERMISSIVE",
	"CC0-1.0":      "PERMISSIVE",
	"MPL-2.0":      "RECIPROCAL",
}

var moduleLicenseFile = map[string]string{
	"Apache-2.0":   "MODULE_LICENSE_APACHE2",
	"MIT":          "MODULE_LICENSE_MIT",
	"BSD-2-Clause": "MODULE_LICENSE_BSD",
	"BSD-3-Clause": "MODULE_LICENSE_BSD",
	"ISC":          "MODULE_LICENSE_ISC",
	"Zlib":         "MODULE_LICENSE_ZLIB",
	"BSL-1.0":      "MODULE_LICENSE_BOOST",
	"0BSD":         "MODULE_LICENSE_PERMISSIVE",
	"Unlicense":    "MODULE_LICENSE_PERMISSIVE",
	"CC0-1.0":      "MODULE_LICENSE_PERMISSIVE",
	"MPL-2.0":      "MODULE_LICENSE_MPL",
	"Unicode-3.0":  "MODULE_LICENSE_UNICODE",
}

// LicenseFileAdapter classifies license files by name against the
// license expression declared in Cargo.toml.
type LicenseFileAdapter struct{}

func NewLicenseFileAdapter() LicenseFileAdapter {
	return LicenseFileAdapter{}
}

// Classify picks the alternative of declared that is fully covered by
// license files, preferring licenses earlier in licensePreference. When
// no alternative is covered the closest one is reported with its missing
// licenses.
func (a LicenseFileAdapter) Classify(dir string, name string, declared string) (types.LicenseState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.LicenseState{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("crate directory for %s not found", name)).
			WithCause(err)
	}
	alternatives := parseLicenseExpression(declared)
	found := map[string]string{}
	var generic []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		normalized := normalizeLicenseFileName(entry.Name())
		if license, ok := licenseFileNames[normalized]; ok {
			if _, seen := found[license]; !seen {
				found[license] = entry.Name()
			}
			continue
		}
		if genericLicenseNames[normalized] {
			generic = append(generic, entry.Name())
		}
	}
	if len(generic) > 0 && len(alternatives) == 1 && len(alternatives[0]) == 1 {
		only := alternatives[0][0]
		if _, ok := found[only]; !ok {
			sort.Strings(generic)
			found[only] = generic[0]
		}
	}
	state := types.LicenseState{Satisfied: map[string]string{}}
	if len(alternatives) == 0 {
		for license, file := range found {
			state.Satisfied[license] = file
		}
		if len(state.Satisfied) == 0 {
			state.Unsatisfied = []string{"NOASSERTION"}
		}
		return state, nil
	}
	best := -1
	bestMissing := 0
	for i, alt := range alternatives {
		missing := 0
		for _, license := range alt {
			if _, ok := found[license]; !ok {
				missing++
			}
		}
		if best < 0 || missing < bestMissing || (missing == bestMissing && preferenceRank(alt) < preferenceRank(alternatives[best])) {
			best = i
			bestMissing = missing
		}
	}
	for _, license := range alternatives[best] {
		if file, ok := found[license]; ok {
			state.Satisfied[license] = file
			continue
		}
		state.Unsatisfied = append(state.Unsatisfied, license)
	}
	return state, nil
}

func (a LicenseFileAdapter) MostRestrictiveType(state types.LicenseState) string {
	rank := len(licenseTypes) - 1
	if len(state.Satisfied) == 0 || len(state.Unsatisfied) > 0 {
		return licenseTypes[0]
	}
	for license := range state.Satisfied {
		kind, ok := licenseTypeOf[license]
		if !ok {
			kind = licenseTypes[0]
		}
		for i, candidate := range licenseTypes {
			if candidate == kind && i < rank {
				rank = i
			}
		}
	}
	return licenseTypes[rank]
}

// UpdateModuleLicenseFiles replaces the MODULE_LICENSE_* markers in dir
// with one empty marker per satisfied license.
func (a LicenseFileAdapter) UpdateModuleLicenseFiles(dir string, state types.LicenseState) error {
	existing, err := filepath.Glob(filepath.Join(dir, "MODULE_LICENSE_*"))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid module license pattern").
			WithCause(err)
	}
	for _, path := range existing {
		if err := os.Remove(path); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to remove %s", path)).
				WithCause(err)
		}
	}
	for license := range state.Satisfied {
		marker, ok := moduleLicenseFile[license]
		if !ok {
			marker = "MODULE_LICENSE_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(license))
		}
		if err := os.WriteFile(filepath.Join(dir, marker), nil, 0644); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to write %s", marker)).
				WithCause(err)
		}
	}
	return nil
}

// parseLicenseExpression expands an SPDX expression into OR alternatives
// of AND terms. A slash is read as OR, as older crates write
// "MIT/Apache-2.0". Malformed input yields what could be parsed.
func parseLicenseExpression(expr string) [][]string {
	expr = strings.NewReplacer("(", " ( ", ")", " ) ", "/", " OR ").Replace(expr)
	p := &licenseParser{tokens: strings.Fields(expr)}
	return p.or()
}

type licenseParser struct {
	tokens []string
	pos    int
}

func (p *licenseParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *licenseParser) or() [][]string {
	out := p.and()
	for strings.EqualFold(p.peek(), "OR") {
		p.pos++
		out = append(out, p.and()...)
	}
	return out
}

func (p *licenseParser) and() [][]string {
	out := p.factor()
	for strings.EqualFold(p.peek(), "AND") {
		p.pos++
		right := p.factor()
		var product [][]string
		for _, l := range out {
			for _, r := range right {
				product = append(product, append(append([]string{}, l...), r...))
			}
		}
		out = product
	}
	return out
}

func (p *licenseParser) factor() [][]string {
	token := p.peek()
	switch {
	case token == "":
		return nil
	case token == "(":
		p.pos++
		out := p.or()
		if p.peek() == ")" {
			p.pos++
		}
		return out
	case token == ")" || strings.EqualFold(token, "OR") || strings.EqualFold(token, "AND"):
		return nil
	}
	p.pos++
	if strings.EqualFold(p.peek(), "WITH") {
		p.pos += 2
	}
	return [][]string{{strings.TrimSuffix(token, "+")}}
}

func preferenceRank(alt []string) int {
	for i, license := range licensePreference {
		for _, term := range alt {
			if term == license {
				return i
			}
		}
	}
	return len(licensePreference)
}

func normalizeLicenseFileName(name string) string {
	upper := strings.ToUpper(name)
	for _, ext := range []string{".MD", ".TXT", ".RST"} {
		upper = strings.TrimSuffix(upper, ext)
	}
	return strings.ReplaceAll(upper, "_", "-")
}

var _ ports.LicenseClassifierPort = LicenseFileAdapter{}
