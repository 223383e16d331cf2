package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/ngld/henge/pkg/expected"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	names := []string{}
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

type tarEntry struct {
	name     string
	content  string
	linkname string
}

func writeTar(t *testing.T, w io.Writer, entries []tarEntry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry.name, Mode: 0o755, Size: int64(len(entry.content)), Typeflag: tar.TypeReg}
		if entry.linkname != "" {
			hdr = &tar.Header{Name: entry.name, Linkname: entry.linkname, Typeflag: tar.TypeSymlink}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if entry.linkname == "" {
			_, err := tw.Write([]byte(entry.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"https://example.com/sdk-1.0.zip":           ".zip",
		"https://example.com/sdk-1.0.tar.gz":        ".tar.gz",
		"https://example.com/sdk.TGZ":               ".tgz",
		"https://example.com/sdk.tar.bz2?x=1":       ".tar.bz2",
		"https://example.com/sdk.tar.xz#frag":       ".tar.xz",
		"https://example.com/download?id=12":        ".zip",
		"https://example.com/releases/latest/print": ".zip",
	}

	for url, want := range tests {
		require.Equal(t, want, Extension(url), url)
	}
}

func TestZipRoundTripWithStrip(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "src", "a.txt"), "alpha")
	srcB := writeFile(t, filepath.Join(dir, "src", "b.txt"), "beta")

	archivePath := filepath.Join(dir, "pkg.zip")
	w, err := NewWriter(FormatZip, archivePath)
	require.NoError(t, err)
	require.NoError(t, w.AddFile(src, "pkg-1.0/bin/a.txt"))
	require.NoError(t, w.AddFile(srcB, "pkg-1.0/b.txt"))
	require.NoError(t, w.AddFile(srcB, "top.txt"))
	require.NoError(t, w.Close())

	require.Equal(t, []string{"pkg-1.0/b.txt", "pkg-1.0/bin/a.txt", "top.txt"}, zipNames(t, archivePath))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(context.Background(), archivePath, dest, 1))

	require.Equal(t, "alpha", readFile(t, filepath.Join(dest, "bin", "a.txt")))
	require.Equal(t, "beta", readFile(t, filepath.Join(dest, "b.txt")))
	require.NoFileExists(t, filepath.Join(dest, "top.txt"))
}

func TestZipWriterSkipsRepeatedEntries(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "a.txt"), "alpha")

	archivePath := filepath.Join(dir, "x.zip")
	w, err := NewZipWriter(archivePath)
	require.NoError(t, err)

	require.NoError(t, w.AddFile(src, "a.txt"))
	require.NoError(t, w.AddFile(filepath.Join(dir, ".", "a.txt"), "./a.txt"))
	require.NoError(t, w.Close())

	require.Equal(t, []string{"a.txt"}, zipNames(t, archivePath))
}

func TestZipWriterRejectsConflictsAndEscapes(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	other := writeFile(t, filepath.Join(dir, "b.txt"), "beta")

	w, err := NewZipWriter(filepath.Join(dir, "x.zip"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddFile(src, "a.txt"))

	err = w.AddFile(other, "a.txt")
	require.Error(t, err)
	require.True(t, expected.Is(err))
	require.Contains(t, err.Error(), "was added for both")

	require.Error(t, w.AddFile(src, "../evil.txt"))
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pkg.tar.gz")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	writeTar(t, gz, []tarEntry{
		{name: "root/bin/tool", content: "#!/bin/sh"},
		{name: "root/lib/libx.so", content: "elf"},
		{name: "root/lib/libx.so.1", linkname: "libx.so"},
	})
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(context.Background(), archivePath, dest, 1))

	require.Equal(t, "#!/bin/sh", readFile(t, filepath.Join(dest, "bin", "tool")))
	info, err := os.Stat(filepath.Join(dest, "bin", "tool"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o100)

	link, err := os.Readlink(filepath.Join(dest, "lib", "libx.so.1"))
	require.NoError(t, err)
	require.Equal(t, "libx.so", link)
}

func TestExtractTarXz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pkg.tar.xz")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	xw, err := xz.NewWriter(f)
	require.NoError(t, err)
	writeTar(t, xw, []tarEntry{{name: "readme.md", content: "hi"}})
	require.NoError(t, xw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(context.Background(), archivePath, dest, 0))
	require.Equal(t, "hi", readFile(t, filepath.Join(dest, "readme.md")))
}

func TestExtractRejectsEntriesOutsideDestination(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	writeTar(t, gz, []tarEntry{{name: "../../etc/passwd", content: "x"}})
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	err = Extract(context.Background(), archivePath, filepath.Join(dir, "out"), 0)
	require.Error(t, err)
	_, ok := expected.As(err)
	require.True(t, ok)
}

func TestKarWriterHeader(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "a.txt"), "alpha")

	archivePath := filepath.Join(dir, "x.kar")
	w, err := NewWriter(FormatKar, archivePath)
	require.NoError(t, err)
	require.NoError(t, w.AddFile(src, "data/a.txt"))
	require.NoError(t, w.AddFile(src, "b.txt"))
	require.NoError(t, w.AddFile(src, "b.txt"))
	require.Error(t, w.AddFile(src, "data"))
	require.Error(t, w.AddFile(writeFile(t, filepath.Join(dir, "c.txt"), "gamma"), "b.txt"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	require.Equal(t, "KNAR", string(data[:4]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[4:8]))
	// "data" + ".." + a.txt + b.txt
	require.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[12:16]))
}

func TestUnknownWriterFormat(t *testing.T) {
	_, err := NewWriter("rar", filepath.Join(t.TempDir(), "x.rar"))
	require.Error(t, err)
}
