package publish

import (
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const (
	pathSegmentSeparatorConstant  = "/"
	globWildcardConstant          = "*"
	globSingleCharacterConstant   = "?"
	globSampleReplacementConstant = "sample"
	globSingleReplacementConstant = "x"
	negatedPatternPrefixConstant  = "!"
	commentPatternPrefixConstant  = "#"
)

// DefaultSecretPatterns lists the gitignore-style patterns treated as secrets when none are configured.
var DefaultSecretPatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"id_rsa",
	"credentials.json",
	"secrets.*",
}

// SecretGuard detects secret files in transmitted snapshots and checks exclusion coverage.
type SecretGuard struct {
	rawPatterns []string
	matcher     gitignore.Matcher
}

// NewSecretGuard compiles the supplied gitignore-style patterns, falling back to DefaultSecretPatterns.
func NewSecretGuard(patterns []string) SecretGuard {
	rawPatterns := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, commentPatternPrefixConstant) {
			continue
		}
		rawPatterns = append(rawPatterns, trimmed)
	}
	if len(rawPatterns) == 0 {
		rawPatterns = append(rawPatterns, DefaultSecretPatterns...)
	}

	compiled := make([]gitignore.Pattern, 0, len(rawPatterns))
	for _, pattern := range rawPatterns {
		compiled = append(compiled, gitignore.ParsePattern(pattern, nil))
	}

	return SecretGuard{rawPatterns: rawPatterns, matcher: gitignore.NewMatcher(compiled)}
}

// Patterns returns the active patterns.
func (guard SecretGuard) Patterns() []string {
	return append([]string{}, guard.rawPatterns...)
}

// Inspect returns the sorted subset of paths that match a secret pattern.
func (guard SecretGuard) Inspect(paths []string) []string {
	if guard.matcher == nil {
		return nil
	}
	matches := make([]string, 0)
	for _, path := range paths {
		if guard.matcher.Match(splitSnapshotPath(path), false) {
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)
	return matches
}

// UncoveredPatterns returns the secret patterns the exclusion matcher would not ignore.
func (guard SecretGuard) UncoveredPatterns(exclusion gitignore.Matcher) []string {
	uncovered := make([]string, 0)
	for _, pattern := range guard.rawPatterns {
		if strings.HasPrefix(pattern, negatedPatternPrefixConstant) {
			continue
		}
		if exclusion == nil || !exclusion.Match(splitSnapshotPath(samplePathForPattern(pattern)), false) {
			uncovered = append(uncovered, pattern)
		}
	}
	return uncovered
}

// ExcludedPaths returns the sorted subset of paths the workspace exclusion rules ignore.
func ExcludedPaths(exclusion gitignore.Matcher, paths []string) []string {
	matches := make([]string, 0)
	if exclusion == nil {
		return matches
	}
	for _, path := range paths {
		if exclusion.Match(splitSnapshotPath(path), false) {
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)
	return matches
}

// LoadExclusionMatcher reads the workspace exclusion files (.gitignore files and .git/info/exclude).
func LoadExclusionMatcher(workspacePath string) (gitignore.Matcher, error) {
	patterns, readError := gitignore.ReadPatterns(osfs.New(workspacePath), nil)
	if readError != nil {
		return nil, readError
	}
	return gitignore.NewMatcher(patterns), nil
}

func mergePaths(first []string, second []string) []string {
	seen := make(map[string]struct{}, len(first)+len(second))
	merged := make([]string, 0, len(first)+len(second))
	for _, path := range append(append([]string{}, first...), second...) {
		if _, duplicate := seen[path]; duplicate {
			continue
		}
		seen[path] = struct{}{}
		merged = append(merged, path)
	}
	sort.Strings(merged)
	return merged
}

func samplePathForPattern(pattern string) string {
	sample := strings.TrimPrefix(pattern, pathSegmentSeparatorConstant)
	sample = strings.ReplaceAll(sample, globWildcardConstant+globWildcardConstant+pathSegmentSeparatorConstant, "")
	sample = strings.ReplaceAll(sample, globWildcardConstant, globSampleReplacementConstant)
	sample = strings.ReplaceAll(sample, globSingleCharacterConstant, globSingleReplacementConstant)
	return strings.TrimSuffix(sample, pathSegmentSeparatorConstant)
}

func splitSnapshotPath(path string) []string {
	return strings.Split(strings.Trim(path, pathSegmentSeparatorConstant), pathSegmentSeparatorConstant)
}
