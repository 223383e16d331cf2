package walker

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngld/henge/pkg/expected"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()

	root := t.TempDir()
	for _, file := range files {
		full := filepath.Join(root, filepath.FromSlash(file))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(file), 0o644))
	}
	return root
}

func collect(t *testing.T, pattern, root string) []Match {
	t.Helper()

	w, err := New(pattern)
	require.NoError(t, err)

	matches, err := w.Collect(root)
	require.NoError(t, err)
	return matches
}

func paths(matches []Match) []string {
	result := make([]string, len(matches))
	for idx, m := range matches {
		result[idx] = m.Path
	}
	return result
}

var tree = []string{
	"README.md",
	"bin/tool",
	"lib/a.so",
	"lib/b.so",
	"lib/readme.txt",
	"lib/sub/c.so",
	"assets/y.png",
	"assets/img/x.png",
	"assets/img/icons/z.png",
}

func TestLiteralPattern(t *testing.T) {
	root := writeTree(t, tree...)

	require.Equal(t, []string{"bin/tool"}, paths(collect(t, "bin/tool", root)))
	require.Empty(t, collect(t, "bin", root), "directories are never reported")
	require.Empty(t, collect(t, "bin/missing", root))
	require.Equal(t, []string{"lib/a.so"}, paths(collect(t, "./lib//a.so", root)))
}

func TestStarPattern(t *testing.T) {
	root := writeTree(t, tree...)

	matches := collect(t, "lib/*.so", root)
	require.Equal(t, []Match{
		{Path: "lib/a.so", Captures: []Capture{StarCapture("a")}},
		{Path: "lib/b.so", Captures: []Capture{StarCapture("b")}},
	}, matches)
}

func TestStarNeverReportsDirectories(t *testing.T) {
	root := writeTree(t, tree...)

	require.Equal(t, []string{"README.md"}, paths(collect(t, "*", root)))
	require.Equal(t, []string{"lib/a.so", "lib/b.so", "lib/readme.txt"}, paths(collect(t, "lib/*", root)))
}

func TestMultipleStarsInOneSegment(t *testing.T) {
	root := writeTree(t, "pkg/app-1.2.tar.gz", "pkg/lib-0.1.tar.gz", "pkg/notes.txt")

	matches := collect(t, "pkg/*-*.tar.gz", root)
	require.Equal(t, []Match{
		{Path: "pkg/app-1.2.tar.gz", Captures: []Capture{StarCapture("app"), StarCapture("1.2")}},
		{Path: "pkg/lib-0.1.tar.gz", Captures: []Capture{StarCapture("lib"), StarCapture("0.1")}},
	}, matches)

	re := regexp.MustCompile(`^(.*)-(.*)\.tar\.gz$`)
	for _, m := range matches {
		require.Regexp(t, re, filepath.Base(m.Path))
	}
}

func TestStarEscapesRegexCharacters(t *testing.T) {
	root := writeTree(t, "a+b.txt", "aab.txt", "x(1).txt")

	require.Equal(t, []string{"a+b.txt"}, paths(collect(t, "a+*.txt", root)))
	require.Equal(t, []string{"x(1).txt"}, paths(collect(t, "x(*).txt", root)))
}

func TestGlobStarCapturesDirectories(t *testing.T) {
	root := writeTree(t, tree...)

	matches := collect(t, "assets/**", root)
	require.Equal(t, []Match{
		{Path: "assets/img/icons/z.png", Captures: []Capture{GlobStarCapture("img", "icons", "z.png")}},
		{Path: "assets/img/x.png", Captures: []Capture{GlobStarCapture("img", "x.png")}},
		{Path: "assets/y.png", Captures: []Capture{GlobStarCapture("y.png")}},
	}, matches)
}

func TestGlobStarMatchesZeroDirectories(t *testing.T) {
	root := writeTree(t, tree...)

	matches := collect(t, "lib/**/*.so", root)
	require.Equal(t, []Match{
		{Path: "lib/a.so", Captures: []Capture{GlobStarCapture(), StarCapture("a")}},
		{Path: "lib/b.so", Captures: []Capture{GlobStarCapture(), StarCapture("b")}},
		{Path: "lib/sub/c.so", Captures: []Capture{GlobStarCapture("sub"), StarCapture("c")}},
	}, matches)
}

func TestLeadingGlobStar(t *testing.T) {
	root := writeTree(t, tree...)

	require.Equal(t, []string{"lib/a.so", "lib/b.so", "lib/sub/c.so"}, paths(collect(t, "**/*.so", root)))
}

func TestOverlappingBranchesAreReportedOnce(t *testing.T) {
	root := writeTree(t, tree...)

	matches := collect(t, "**/**/*.png", root)
	require.ElementsMatch(t, []string{"assets/y.png", "assets/img/x.png", "assets/img/icons/z.png"}, paths(matches))

	matches = collect(t, "*/**", root)
	seen := map[string]bool{}
	for _, m := range matches {
		require.False(t, seen[m.Path], "%s reported twice", m.Path)
		seen[m.Path] = true
	}
	require.Len(t, matches, 8)
}

func TestInvalidGlobStarUsage(t *testing.T) {
	for _, pattern := range []string{"a/**b/c", "***", "x**/y", "", "/"} {
		_, err := New(pattern)
		require.Error(t, err, pattern)

		_, ok := expected.As(err)
		require.True(t, ok, pattern)
	}
}

func TestMissingStartDirectory(t *testing.T) {
	root := writeTree(t, tree...)

	require.Empty(t, collect(t, "*.so", filepath.Join(root, "nope")))
	require.Empty(t, collect(t, "*.so", filepath.Join(root, "README.md")))
}

func TestCachesAreDroppedAfterWalk(t *testing.T) {
	root := writeTree(t, tree...)

	w, err := New("lib/*.so")
	require.NoError(t, err)

	first, err := w.Collect(root)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "d.so"), nil, 0o644))

	second, err := w.Collect(root)
	require.NoError(t, err)
	require.Equal(t, []string{"lib/a.so", "lib/b.so", "lib/d.so"}, paths(second))
}
