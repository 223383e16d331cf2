package archive

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/expected"
)

// Writer collects files into an archive
type Writer interface {
	// AddFile copies the file at sourcePath into the archive as name. name uses "/" as separator.
	AddFile(sourcePath, name string) error
	// Close finishes the archive and releases the underlying file
	Close() error
}

// Supported archive formats for NewWriter
const (
	FormatZip = "zip"
	FormatKar = "kar"
)

// NewWriter creates filename and returns a writer for the given format
func NewWriter(format, filename string) (Writer, error) {
	switch format {
	case "", FormatZip:
		return NewZipWriter(filename)
	case FormatKar:
		return NewKarWriter(filename)
	}

	return nil, expected.Errorf("Unknown archive format %q, expected %q or %q", format, FormatZip, FormatKar)
}

func entryName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || clean == "" || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", expected.Errorf("Invalid archive entry name %q", name)
	}
	return clean, nil
}

// sources maps each archive entry to the file packed under it
type sources map[string]string

// claim reports whether sourcePath still has to be written as name. Packing the same file under the
// same name again is a no-op, packing a different one is an error.
func (s sources) claim(sourcePath, name string) (bool, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return false, eris.Wrapf(err, "Failed to resolve %s", sourcePath)
	}

	prev, ok := s[name]
	if !ok {
		s[name] = abs
		return true, nil
	}
	if prev == abs {
		return false, nil
	}

	return false, expected.Errorf("Archive entry %s was added for both %s and %s", name, prev, abs)
}

// ZipWriter writes deflate-compressed zip archives
type ZipWriter struct {
	hdl    *os.File
	writer *zip.Writer
	names  sources
}

// NewZipWriter creates a new ZipWriter instance and opens it for writing
func NewZipWriter(filename string) (*ZipWriter, error) {
	hdl, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", filename)
	}

	return &ZipWriter{
		hdl:    hdl,
		writer: zip.NewWriter(hdl),
		names:  sources{},
	}, nil
}

// AddFile implements Writer
func (w *ZipWriter) AddFile(sourcePath, name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}
	pending, err := w.names.claim(sourcePath, name)
	if err != nil || !pending {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", sourcePath)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", sourcePath)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return eris.Wrapf(err, "Failed to build zip header for %s", sourcePath)
	}
	header.Name = name
	header.Method = zip.Deflate

	dest, err := w.writer.CreateHeader(header)
	if err != nil {
		return eris.Wrapf(err, "Failed to add %s", name)
	}

	_, err = io.Copy(dest, src)
	if err != nil {
		return eris.Wrapf(err, "Failed to pack %s", sourcePath)
	}

	return nil
}

// Close writes the central directory and closes the file
func (w *ZipWriter) Close() error {
	err := w.writer.Close()
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to finish zip archive")
	}

	return w.hdl.Close()
}
