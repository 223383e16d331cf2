// Package walker matches glob patterns against a directory tree and reports what each wildcard
// captured.
//
// Patterns are split into segments on "/" (and "\"). A segment is either a literal name, a name
// containing "*" wildcards (each "*" matches any part of a single name) or the bare "**" token which
// matches any number of directories, including none.
package walker

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/expected"
)

// GlobStar is the token matching zero or more directories
const GlobStar = "**"

// Capture holds the text matched by a single wildcard
type Capture struct {
	// IsGlobStar marks captures produced by a "**" segment
	IsGlobStar bool
	// Star is the text matched by a "*" wildcard
	Star string
	// Dirs are the names consumed by a "**" segment
	Dirs []string
}

// StarCapture creates the capture of a "*" wildcard
func StarCapture(text string) Capture {
	return Capture{Star: text}
}

// GlobStarCapture creates the capture of a "**" segment
func GlobStarCapture(dirs ...string) Capture {
	if dirs == nil {
		dirs = []string{}
	}
	return Capture{IsGlobStar: true, Dirs: dirs}
}

// Handler is called once for every matched file. path is relative to the walk's start directory
// and always uses "/" as separator.
type Handler func(path string, captures []Capture) error

type segmentKind int

const (
	literalSegment segmentKind = iota
	starSegment
	globStarSegment
)

type segment struct {
	kind    segmentKind
	literal string
	matcher *regexp.Regexp
}

// Walker matches one pattern. Its stat / readdir caches only live for the duration of a single
// Walk call.
type Walker struct {
	pattern  string
	segments []segment

	stats map[string]os.FileInfo
	dirs  map[string][]string
}

// New compiles the given pattern
func New(pattern string) (*Walker, error) {
	normalized := path.Clean(strings.ReplaceAll(pattern, "\\", "/"))
	parts := strings.Split(normalized, "/")

	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}

		switch {
		case part == GlobStar:
			segments = append(segments, segment{kind: globStarSegment})
		case strings.Contains(part, GlobStar):
			return nil, expected.Errorf("Invalid pattern %q", pattern)
		case strings.Contains(part, "*"):
			segments = append(segments, segment{kind: starSegment, literal: part, matcher: compileStar(part)})
		default:
			segments = append(segments, segment{kind: literalSegment, literal: part})
		}
	}

	if len(segments) == 0 {
		return nil, expected.Errorf("Invalid pattern %q", pattern)
	}

	return &Walker{
		pattern:  pattern,
		segments: segments,
	}, nil
}

func compileStar(part string) *regexp.Regexp {
	pieces := strings.Split(part, "*")
	for idx, piece := range pieces {
		pieces[idx] = regexp.QuoteMeta(piece)
	}

	return regexp.MustCompile("^" + strings.Join(pieces, "(.*)") + "$")
}

// Pattern returns the pattern this walker was created for
func (w *Walker) Pattern() string {
	return w.pattern
}

// Walk calls handler for every regular file below start that matches the pattern. Each file is
// reported at most once.
func (w *Walker) Walk(start string, handler Handler) error {
	start, err := filepath.Abs(start)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", start)
	}

	w.stats = make(map[string]os.FileInfo)
	w.dirs = make(map[string][]string)
	defer func() {
		w.stats = nil
		w.dirs = nil
	}()

	info := w.stat(start)
	if info == nil || !info.IsDir() {
		return nil
	}

	walked := make(map[string]bool)
	return w.walkNext(start, w.segments, nil, func(item string, captures []Capture) error {
		if walked[item] {
			return nil
		}
		walked[item] = true

		rel, err := filepath.Rel(start, item)
		if err != nil {
			return eris.Wrapf(err, "Failed to relativize %s", item)
		}

		return handler(filepath.ToSlash(rel), captures)
	})
}

// Match is a single result returned by Collect
type Match struct {
	Path     string
	Captures []Capture
}

// Collect walks start and returns all matches in the order they were found
func (w *Walker) Collect(start string) ([]Match, error) {
	result := []Match{}
	err := w.Walk(start, func(item string, captures []Capture) error {
		result = append(result, Match{Path: item, Captures: captures})
		return nil
	})
	return result, err
}

func (w *Walker) walkNext(dir string, segments []segment, captures []Capture, handler Handler) error {
	seg := segments[0]
	rest := segments[1:]

	switch seg.kind {
	case globStarSegment:
		// zero directories
		err := w.walkPath(dir, false, rest, withCaptures(captures, GlobStarCapture()), handler)
		if err != nil {
			return err
		}

		return w.walkGlobStars(dir, true, rest, captures, handler)
	case starSegment:
		return w.walkStar(dir, seg, rest, captures, handler)
	default:
		return w.walkPath(filepath.Join(dir, seg.literal), false, rest, captures, handler)
	}
}

func (w *Walker) walkPath(item string, globStars bool, rest []segment, captures []Capture, handler Handler) error {
	info := w.stat(item)
	if info == nil {
		return nil
	}

	if info.IsDir() {
		if len(rest) > 0 {
			err := w.walkNext(item, rest, captures, handler)
			if err != nil {
				return err
			}
		}

		if globStars {
			return w.walkGlobStars(item, false, rest, captures, handler)
		}
	} else if info.Mode().IsRegular() && len(rest) == 0 {
		return handler(item, captures)
	}

	return nil
}

func (w *Walker) walkStar(dir string, seg segment, rest []segment, captures []Capture, handler Handler) error {
	names, err := w.readdir(dir)
	if err != nil {
		return err
	}

	for _, name := range names {
		match := seg.matcher.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		starCaptures := make([]Capture, len(match)-1)
		for idx, text := range match[1:] {
			starCaptures[idx] = StarCapture(text)
		}

		err = w.walkPath(filepath.Join(dir, name), false, rest, withCaptures(captures, starCaptures...), handler)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) walkGlobStars(dir string, first bool, rest []segment, captures []Capture, handler Handler) error {
	names, err := w.readdir(dir)
	if err != nil {
		return err
	}

	for _, name := range names {
		var next []Capture
		if first {
			next = withCaptures(captures, GlobStarCapture(name))
		} else {
			next = withCaptures(captures)
			last := next[len(next)-1]
			dirs := make([]string, len(last.Dirs), len(last.Dirs)+1)
			copy(dirs, last.Dirs)
			next[len(next)-1] = GlobStarCapture(append(dirs, name)...)
		}

		err = w.walkPath(filepath.Join(dir, name), true, rest, next, handler)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) stat(item string) os.FileInfo {
	if info, ok := w.stats[item]; ok {
		return info
	}

	info, err := os.Stat(item)
	if err != nil {
		info = nil
	}

	w.stats[item] = info
	return info
}

func (w *Walker) readdir(dir string) ([]string, error) {
	if names, ok := w.dirs[dir]; ok {
		return names, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to read directory %s", dir)
	}

	names := make([]string, len(entries))
	for idx, entry := range entries {
		names[idx] = entry.Name()
	}
	sort.Strings(names)

	w.dirs[dir] = names
	return names, nil
}

func withCaptures(captures []Capture, extra ...Capture) []Capture {
	result := make([]Capture, len(captures), len(captures)+len(extra))
	copy(result, captures)
	return append(result, extra...)
}
