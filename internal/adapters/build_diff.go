package adapters

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/pmezard/go-difflib/difflib"

	"crate-tool/internal/ports"
)

// volatileBuildLines match generated build-file lines that change between
// generator runs without any real change to the crate.
var volatileBuildLines = []*regexp.Regexp{
	regexp.MustCompile(`default_team: "trendy_team_android_rust"`),
	regexp.MustCompile(`// has rustc warnings`),
	regexp.MustCompile(`This file is generated by`),
	regexp.MustCompile(`cargo_pkg_version:`),
}

// ignoredTreeFiles are never carried into the managed tree, so tree
// comparisons skip them wherever they appear.
var ignoredTreeFiles = map[string]bool{
	".appveyor.yml": true, ".bazelci": true, ".bazelignore": true, ".bazelrc": true,
	".bazelversion": true, ".buildkite": true, ".cargo": true, ".cargo-checksum.json": true,
	".cargo_vcs_info.json": true, ".circleci": true, ".cirrus.yml": true, ".clang-format": true,
	".clang-tidy": true, ".clippy.toml": true, ".clog.toml": true, ".codecov.yaml": true,
	".codecov.yml": true, ".editorconfig": true, ".gcloudignore": true, ".gdbinit": true,
	".git": true, ".git-blame-ignore-revs": true, ".git-ignore-revs": true, ".gitallowed": true,
	".gitattributes": true, ".github": true, ".gitignore": true, ".idea": true,
	".ignore": true, ".istanbul.yml": true, ".mailmap": true, ".md-inc.toml": true,
	".mdl-style.rb": true, ".mdlrc": true, ".pylintrc": true, ".pylintrc-examples": true,
	".pylintrc-tests": true, ".reuse": true, ".rspec": true, ".rustfmt.toml": true,
	".shellcheckrc": true, ".standard-version": true, ".tarpaulin.toml": true, ".tokeignore": true,
	".travis.yml": true, ".versionrc": true, ".vim": true, ".vscode": true,
	".yapfignore": true, ".yardopts": true, "BUILD": true, "Cargo.lock": true,
	"Cargo.lock.saved": true, "Cargo.toml.orig": true, "OWNERS": true,
	"cargo2rulesmk.json": true, "CleanSpec.mk": true, "rules.mk": true,
	"Android.bp.orig": true, "cargo.metadata": true, "cargo.out": true, "target.tmp": true,
}

type DifferAdapter struct{}

func NewDifferAdapter() DifferAdapter {
	return DifferAdapter{}
}

// DiffBuildFile diffs two build files ignoring whitespace, blank lines and
// volatile generated lines. A missing committed file diffs as empty.
func (a DifferAdapter) DiffBuildFile(committed string, staged string) (string, error) {
	before, err := os.ReadFile(committed)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to read %s", committed)).
			WithCause(err)
	}
	after, err := os.ReadFile(staged)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("staged build file %s not found", staged)).
			WithCause(err)
	}
	left := significantLines(string(before))
	right := significantLines(string(after))
	if sameIgnoringSpace(left, right) {
		return "", nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        left,
		B:        right,
		FromFile: committed,
		ToFile:   staged,
		Context:  3,
	})
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to render build file diff").
			WithCause(err)
	}
	return diff, nil
}

// DiffTree returns the relative paths whose content differs between left
// and right, or that exist on only one side. Symlinks compare by target.
func (a DifferAdapter) DiffTree(left string, right string) ([]string, error) {
	leftFiles, err := treeContents(left)
	if err != nil {
		return nil, err
	}
	rightFiles, err := treeContents(right)
	if err != nil {
		return nil, err
	}
	var differ []string
	for rel, content := range leftFiles {
		other, ok := rightFiles[rel]
		if !ok || other != content {
			differ = append(differ, rel)
		}
	}
	for rel := range rightFiles {
		if _, ok := leftFiles[rel]; !ok {
			differ = append(differ, rel)
		}
	}
	sort.Strings(differ)
	return differ, nil
}

func treeContents(root string) (map[string]string, error) {
	contents := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if ignoredTreeFiles[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			contents[rel] = "symlink:" + target
		case d.IsDir():
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			contents[rel] = normalizeTreeFile(string(data))
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("failed to read tree %s", root)).
			WithCause(err)
	}
	return contents, nil
}

func significantLines(content string) []string {
	var out []string
	for _, line := range difflib.SplitLines(content) {
		if strings.TrimSpace(line) == "" || isVolatile(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func isVolatile(line string) bool {
	for _, pattern := range volatileBuildLines {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

func sameIgnoringSpace(left []string, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if stripSpace(left[i]) != stripSpace(right[i]) {
			return false
		}
	}
	return true
}

// normalizeTreeFile drops whitespace and the team annotation that the
// generator adds to every build file.
func normalizeTreeFile(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if volatileBuildLines[0].MatchString(line) {
			continue
		}
		b.WriteString(stripSpace(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

var _ ports.DifferPort = DifferAdapter{}
