package artifact

import (
	"path"
	"regexp"
	"strings"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/walker"
)

// matches "**/" and "abc/**/"
var trailingGlobStar = regexp.MustCompile(`(?:^|/)\*\*/$`)

// Mapping is a normalized packaging rule
type Mapping struct {
	Package string
	BaseDir string
	Pattern string
	// Path is the output template; wildcards are filled with the pattern's captures
	Path string
	// Platforms restricts the mapping to these platforms (nil means all platforms)
	Platforms map[string]bool

	walker *walker.Walker
}

// Matches reports whether the mapping applies to the given platform
func (m *Mapping) Matches(platformName string) bool {
	return m.Platforms == nil || m.Platforms[platformName]
}

// normalize converts separators to "/" and cleans the path while keeping a trailing separator
func normalize(item string) string {
	if item == "" {
		return ""
	}

	item = strings.ReplaceAll(item, "\\", "/")
	trailing := strings.HasSuffix(item, "/")
	item = path.Clean(item)
	if trailing && item != "/" {
		item += "/"
	}
	return item
}

// NormalizeMapping validates a configured mapping and expands its output path. If the output path
// ends with a separator, "**" and the pattern's base name are appended as needed so single files keep
// their name.
func NormalizeMapping(cfg config.FileMapping) (*Mapping, error) {
	m := &Mapping{
		Package: cfg.Package,
		BaseDir: normalize(cfg.BaseDir),
		Pattern: normalize(cfg.Pattern),
	}

	if m.Pattern == "" {
		return nil, expected.Errorf("line %d: Property `pattern` is required for file mappings", cfg.Line)
	}

	if strings.HasSuffix(m.Pattern, "/") {
		return nil, expected.Errorf("line %d: Expecting mapping pattern %q to match files instead of directories", cfg.Line, cfg.Pattern)
	}

	m.Path = m.Pattern
	if cfg.Path != "" {
		m.Path = normalize(cfg.Path)
	}

	if strings.HasSuffix(m.Path, "/") {
		if !trailingGlobStar.MatchString(m.Path) {
			m.Path = path.Join(m.Path, walker.GlobStar)
		}

		baseName := path.Base(m.Pattern)
		if baseName != walker.GlobStar {
			m.Path = path.Join(m.Path, baseName)
		}
	}

	var platforms []string
	if len(cfg.Platforms) > 0 {
		platforms = cfg.Platforms
	} else if cfg.Platform != "" {
		platforms = []string{cfg.Platform}
	}

	if platforms != nil {
		m.Platforms = make(map[string]bool, len(platforms))
		for _, name := range platforms {
			m.Platforms[name] = true
		}
	}

	var err error
	m.walker, err = walker.New(m.Pattern)
	if err != nil {
		return nil, expected.Errorf("line %d: %s", cfg.Line, err)
	}

	return m, nil
}

// BuildPath fills the wildcards of tmpl with captures. "**" placeholders take the "**" captures and
// "*" placeholders the "*" captures, both spliced in from right to left. Without enough placeholders
// the leading captures are dropped.
func BuildPath(tmpl string, captures []walker.Capture) string {
	stars := []string{}
	globStars := [][]string{}
	for _, capture := range captures {
		if capture.IsGlobStar {
			globStars = append(globStars, capture.Dirs)
		} else {
			stars = append(stars, capture.Star)
		}
	}

	startsWithSlash := strings.HasPrefix(tmpl, "/")

	parts := strings.Split(tmpl, walker.GlobStar)
	for idx := len(parts) - 1; idx > 0 && len(globStars) > 0; idx-- {
		capture := globStars[len(globStars)-1]
		globStars = globStars[:len(globStars)-1]

		if len(capture) > 0 {
			parts = insert(parts, idx, path.Join(capture...))
		}
	}

	parts = strings.Split(strings.Join(parts, ""), "*")
	for idx := len(parts) - 1; idx > 0 && len(stars) > 0; idx-- {
		parts = insert(parts, idx, stars[len(stars)-1])
		stars = stars[:len(stars)-1]
	}

	result := path.Clean(strings.Join(parts, ""))
	if !startsWithSlash {
		result = strings.TrimPrefix(result, "/")
	}
	return result
}

func insert(list []string, idx int, item string) []string {
	list = append(list, "")
	copy(list[idx+1:], list[idx:])
	list[idx] = item
	return list
}
