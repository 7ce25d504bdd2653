// Package resolve parses dotman's ref-expression grammar (HEAD with
// ancestor suffixes, branch/tag names, and object-id prefixes) into a
// concrete commit id.
package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
)

var hexPrefixRe = regexp.MustCompile(`^[0-9a-f]{4,32}$`)

// caretGroupRe matches one trailing "^", optionally followed by a
// parent index; tildeRe matches one trailing "~<digits>" ancestor-count
// suffix. splitSuffixes applies both repeatedly, so carets and tildes
// chain in any combination ("HEAD^^", "HEAD~2~1^2").
var (
	caretGroupRe = regexp.MustCompile(`\^(\d*)$`)
	tildeRe      = regexp.MustCompile(`~(\d+)$`)
)

// ParentLookup resolves a commit id to its ordered parent list, used
// to walk "^n" and "~n" suffixes without the resolver depending on
// the snapshot store's on-disk layout directly.
type ParentLookup func(id string) ([]string, error)

// Resolver evaluates ref expressions against a Manager (for
// HEAD/branches/tags) and a parent-lookup function (for walking
// ancestor suffixes).
type Resolver struct {
	refsManager *refs.Manager
	snapshots   *snapshot.Store
	parents     ParentLookup
}

// New returns a Resolver wired to the given ref manager and a parent
// lookup function (ordinarily backed by a snapshot.Store).
func New(refsManager *refs.Manager, snapshots *snapshot.Store, parents ParentLookup) *Resolver {
	return &Resolver{refsManager: refsManager, snapshots: snapshots, parents: parents}
}

// Resolve evaluates expr and returns the commit id it names.
func (r *Resolver) Resolve(expr string) (string, error) {
	base, suffixes := splitSuffixes(expr)

	id, err := r.resolveBase(base)
	if err != nil {
		return "", err
	}

	for _, suf := range suffixes {
		id, err = r.applySuffix(id, suf)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

// suffix is one trailing "^" or "^n" or "~n" token. Suffixes are
// applied left to right after the base, so "HEAD~2^" walks two first
// parents and then takes the first parent of that commit.
type suffix struct {
	kind  byte // '^' or '~'
	count int
}

// splitSuffixes peels "^" / "^n" / "~n" tokens off the end of expr one
// at a time and returns them in the order they appear (left to right),
// along with the remaining base expression.
func splitSuffixes(expr string) (string, []suffix) {
	var collected []suffix
	rest := expr
	for {
		if m := tildeRe.FindStringSubmatchIndex(rest); m != nil {
			n, _ := strconv.Atoi(rest[m[2]:m[3]])
			collected = append([]suffix{{kind: '~', count: n}}, collected...)
			rest = rest[:m[0]]
			continue
		}
		if m := caretGroupRe.FindStringSubmatchIndex(rest); m != nil {
			countStr := rest[m[2]:m[3]]
			n := 1
			if countStr != "" {
				n, _ = strconv.Atoi(countStr)
			}
			collected = append([]suffix{{kind: '^', count: n}}, collected...)
			rest = rest[:m[0]]
			continue
		}
		break
	}
	return rest, collected
}

func (r *Resolver) resolveBase(base string) (string, error) {
	if base == "HEAD" {
		return r.refsManager.GetHeadCommit()
	}
	if strings.HasPrefix(base, "ref: refs/heads/") {
		name := strings.TrimPrefix(base, "ref: refs/heads/")
		return r.refsManager.GetBranchCommit(name)
	}
	if r.refsManager.BranchExists(base) {
		return r.refsManager.GetBranchCommit(base)
	}
	if r.refsManager.TagExists(base) {
		return r.refsManager.GetTagCommit(base)
	}
	if hexPrefixRe.MatchString(base) {
		return r.snapshots.ResolvePrefix(base)
	}
	return "", fmt.Errorf("resolve: %q: %w", base, dotmanerr.ErrInvalidRef)
}

func (r *Resolver) applySuffix(id string, s suffix) (string, error) {
	switch s.kind {
	case '~':
		current := id
		for i := 0; i < s.count; i++ {
			parents, err := r.parents(current)
			if err != nil {
				return "", err
			}
			if len(parents) == 0 {
				return "", fmt.Errorf("resolve: %s has no ancestor %d generations back: %w", id, s.count, dotmanerr.ErrInvalidRef)
			}
			current = parents[0]
		}
		return current, nil
	case '^':
		if s.count == 0 {
			return id, nil
		}
		parents, err := r.parents(id)
		if err != nil {
			return "", err
		}
		if s.count > len(parents) {
			return "", fmt.Errorf("resolve: %s does not have parent number %d: %w", id, s.count, dotmanerr.ErrInvalidRef)
		}
		return parents[s.count-1], nil
	default:
		return "", fmt.Errorf("resolve: unknown suffix kind %q: %w", s.kind, dotmanerr.ErrInternal)
	}
}
