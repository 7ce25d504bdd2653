package status

import (
	"path/filepath"
	"strings"
)

// ignorePattern is one parsed config ignore-glob entry, following the
// same anchored/dir-only/negated decomposition gitvista uses for
// .gitignore lines — dotman's patterns come from config.toml rather
// than a tree of .gitignore files, so there is exactly one base
// directory (the repo root) and no per-subdirectory override layering.
type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool
}

// IgnoreMatcher filters untracked-file candidates against the
// repository's configured ignore globs.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses the given glob lines (config.toml's
// ignore_globs list) into a matcher.
func NewIgnoreMatcher(globs []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range globs {
		if pat, ok := parseIgnoreLine(line); ok {
			m.patterns = append(m.patterns, pat)
		}
	}
	return m
}

func parseIgnoreLine(line string) (ignorePattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || line[0] == '#' {
		return ignorePattern{}, false
	}

	var pat ignorePattern
	if line[0] == '!' {
		pat.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		pat.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		pat.anchored = true
		line = line[1:]
	}
	if strings.Contains(line, "/") {
		remainder := strings.TrimPrefix(line, "**/")
		if strings.Contains(remainder, "/") || !strings.HasPrefix(line, "**/") {
			pat.anchored = true
		}
	}
	pat.pattern = line
	return pat, line != ""
}

// IsIgnored reports whether relPath (forward-slash separated, relative
// to the repo root) is ignored. Later patterns override earlier ones,
// so a later "!pattern" can un-ignore a file an earlier pattern caught.
func (m *IgnoreMatcher) IsIgnored(relPath string, isDir bool) bool {
	ignored := false
	for _, pat := range m.patterns {
		if pat.dirOnly && !isDir {
			continue
		}
		if matchPattern(pat, relPath) {
			ignored = !pat.negated
		}
	}
	return ignored
}

func matchPattern(pat ignorePattern, relPath string) bool {
	if pat.anchored {
		return matchGlob(pat.pattern, relPath)
	}
	base := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		base = relPath[idx+1:]
	}
	if matchGlob(pat.pattern, base) {
		return true
	}
	return matchGlob(pat.pattern, relPath)
}

// matchGlob matches a gitignore-style pattern against name, honoring
// "**" as zero-or-more path components in addition to
// filepath.Match's single-component wildcards.
func matchGlob(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, name)
		return matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(patParts, nameParts []string) bool {
	pi, ni := 0, 0
	for pi < len(patParts) && ni < len(nameParts) {
		if patParts[pi] == "**" {
			pi++
			if pi >= len(patParts) {
				return true
			}
			for tryNi := ni; tryNi <= len(nameParts); tryNi++ {
				if matchSegments(patParts[pi:], nameParts[tryNi:]) {
					return true
				}
			}
			return false
		}
		matched, _ := filepath.Match(patParts[pi], nameParts[ni])
		if !matched {
			return false
		}
		pi++
		ni++
	}
	for pi < len(patParts) {
		if patParts[pi] != "**" {
			return false
		}
		pi++
	}
	return ni >= len(nameParts)
}
