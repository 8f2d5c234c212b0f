// Package glob implements the source-glob semantics shared by the build and
// the watcher: doublestar matching, gulp-style extglob alternation, and the
// glob base used to compute output paths.
package glob

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Match is a file found by Expand.
type Match struct {
	// Path is the file's location on the filesystem, OS separators.
	Path string
	// Rel is the slash-separated path relative to the glob base.
	Rel string
}

// Normalize rewrites extglob alternation, `+(a|b)` and `@(a|b)`, into the
// brace form `{a,b}` understood by doublestar. `+(...)` is treated as a single
// occurrence, which is how it is used for file extensions.
func Normalize(pattern string) string {
	pattern = filepath.ToSlash(pattern)

	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if (c == '+' || c == '@') && i+1 < len(pattern) && pattern[i+1] == '(' {
			end := strings.IndexByte(pattern[i+2:], ')')
			if end >= 0 {
				alts := pattern[i+2 : i+2+end]
				b.WriteByte('{')
				b.WriteString(strings.ReplaceAll(alts, "|", ","))
				b.WriteByte('}')
				i += 2 + end
				continue
			}
		}
		b.WriteByte(c)
	}

	out := b.String()
	for strings.HasPrefix(out, "./") {
		out = out[2:]
	}
	return out
}

// Split returns the glob base (the leading directories without any glob
// meta characters) and the remaining pattern.
func Split(pattern string) (base, rest string) {
	base, rest = doublestar.SplitPattern(Normalize(pattern))
	if base == "" {
		base = "."
	}
	return base, rest
}

// Validate reports whether pattern is a well-formed glob.
func Validate(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("empty glob")
	}
	if !doublestar.ValidatePattern(Normalize(pattern)) {
		return fmt.Errorf("malformed glob %q", pattern)
	}
	return nil
}

// MatchPath reports whether name matches pattern. Both are cleaned and
// compared with forward slashes. Hidden segments never match.
func MatchPath(pattern, name string) bool {
	name = clean(name)
	if hasHiddenSegment(name) {
		return false
	}
	ok, err := doublestar.Match(Normalize(pattern), name)
	return err == nil && ok
}

// Rel returns name relative to the base of pattern, or false when name does
// not match pattern.
func Rel(pattern, name string) (string, bool) {
	if !MatchPath(pattern, name) {
		return "", false
	}
	base, _ := Split(pattern)
	name = clean(name)
	if base == "." {
		return name, true
	}
	rel := strings.TrimPrefix(name, base+"/")
	if rel == name {
		return "", false
	}
	return rel, true
}

// Expand lists the regular files in fsys that match pattern, sorted by path.
// A missing glob base yields no matches rather than an error, the same way an
// empty source directory does.
func Expand(fsys afero.Fs, pattern string) ([]Match, error) {
	base, rest := Split(pattern)
	if rest == "" {
		rest = "*"
	}
	root := filepath.FromSlash(base)

	if _, err := fsys.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var matches []Match
	err := afero.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(path.Base(rel), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		ok, matchErr := doublestar.Match(rest, rel)
		if matchErr != nil {
			return fmt.Errorf("glob %q: %w", pattern, matchErr)
		}
		if ok {
			matches = append(matches, Match{Path: p, Rel: rel})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Rel < matches[j].Rel })
	return matches, nil
}

func clean(name string) string {
	name = path.Clean(filepath.ToSlash(name))
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return name
}

func hasHiddenSegment(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if len(seg) > 1 && seg[0] == '.' && seg != ".." {
			return true
		}
	}
	return false
}
