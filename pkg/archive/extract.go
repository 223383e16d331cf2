// Package archive writes distribution archives and unpacks downloaded dependencies.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"

	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
)

var extensions = []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".zip"}

// Extension returns the archive extension of name (based on the URL or file name). Names without a
// known extension are treated as zip files.
func Extension(name string) string {
	if pos := strings.IndexAny(name, "?#"); pos > -1 {
		name = name[:pos]
	}

	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}

	return ".zip"
}

type extractor func(f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error

func getExtractor(archivePath string) (extractor, error) {
	switch Extension(archivePath) {
	case ".zip":
		return extractZip, nil
	case ".tar.gz", ".tgz":
		return func(f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return eris.Wrapf(err, "Failed to open gzip stream of %s", f.Name())
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destDir, strip)
		}, nil
	case ".tar.bz2":
		return func(f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error {
			return extractTar(bzip2.NewReader(f), f, bar, destDir, strip)
		}, nil
	case ".tar.xz":
		return func(f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return eris.Wrapf(err, "Failed to open xz stream of %s", f.Name())
			}

			return extractTar(reader, f, bar, destDir, strip)
		}, nil
	}

	return nil, expected.Errorf("Archive format of %s is not supported", archivePath)
}

// Extract unpacks archivePath into destDir, removing the first strip path components of every entry.
// Entries which don't have more than strip components are skipped.
func Extract(ctx context.Context, archivePath, destDir string, strip int) error {
	extract, err := getExtractor(archivePath)
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", archivePath)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", archivePath)
	}

	err = os.MkdirAll(destDir, 0o770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", destDir)
	}

	bar := console.NewProgressBar(ctx, stat.Size(), "      extract")
	err = extract(f, bar, destDir, strip)
	bar.Finish()
	return err
}

// destinationFor strips the leading components from item and places it inside destDir. An empty
// result means the entry should be skipped.
func destinationFor(destDir, item string, strip int) (string, error) {
	item = strings.ReplaceAll(item, "\\", "/")
	parts := strings.Split(strings.Trim(filepath.ToSlash(filepath.Clean(item)), "/"), "/")
	if strip < 0 {
		strip = 0
	}
	if len(parts) <= strip {
		return "", nil
	}

	dest := filepath.Join(destDir, filepath.FromSlash(strings.Join(parts[strip:], "/")))
	if dest == destDir {
		return "", nil
	}

	rel, err := filepath.Rel(destDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", expected.Errorf("Archive entry %s points outside of %s", item, destDir)
	}

	return dest, nil
}

func openExtractorDest(destDir, item string, strip int) (*os.File, string, error) {
	dest, err := destinationFor(destDir, item, strip)
	if err != nil || dest == "" {
		return nil, "", err
	}

	destParent := filepath.Dir(dest)
	err = os.MkdirAll(destParent, 0o770)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func updateBar(f *os.File, bar *progressbar.ProgressBar) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		bar.Set64(pos)
	}
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return eris.Wrapf(err, "Failed to open zip archive %s", f.Name())
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		err = extractZipEntry(item, destDir, strip)
		if err != nil {
			return err
		}

		updateBar(f, bar)
	}

	return nil
}

func extractZipEntry(item *zip.File, destDir string, strip int) error {
	destHandle, dest, err := openExtractorDest(destDir, item.Name, strip)
	if err != nil {
		return err
	}
	if destHandle == nil {
		return nil
	}
	defer destHandle.Close()

	itemHandle, err := item.Open()
	if err != nil {
		return eris.Wrapf(err, "Failed to open archive entry %s", item.Name)
	}
	defer itemHandle.Close()

	_, err = io.Copy(destHandle, itemHandle)
	if err != nil {
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	if mode := item.Mode(); mode&0o111 != 0 {
		err = os.Chmod(dest, mode.Perm())
		if err != nil {
			return eris.Wrapf(err, "Failed to mark %s as executable", dest)
		}
	}

	return destHandle.Close()
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destDir string, strip int) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		switch item.Typeflag {
		case tar.TypeSymlink:
			dest, err := destinationFor(destDir, item.Name, strip)
			if err != nil {
				return err
			}
			if dest == "" {
				continue
			}

			err = os.MkdirAll(filepath.Dir(dest), 0o770)
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
			}

			os.Remove(dest)
			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
		case tar.TypeReg:
			err = extractTarEntry(archive, item, destDir, strip)
			if err != nil {
				return err
			}
		default:
			continue
		}

		updateBar(f, bar)
	}

	return nil
}

func extractTarEntry(archive *tar.Reader, item *tar.Header, destDir string, strip int) error {
	destHandle, dest, err := openExtractorDest(destDir, item.Name, strip)
	if err != nil {
		return err
	}
	if destHandle == nil {
		return nil
	}
	defer destHandle.Close()

	_, err = io.Copy(destHandle, archive)
	if err != nil {
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	err = os.Chmod(dest, item.FileInfo().Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "Failed to update permissions of %s", dest)
	}

	return destHandle.Close()
}
