package archive

import (
	"encoding/binary"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/expected"
)

// karFile contains the metadata for a file entry
type karFile struct {
	offset  int32
	size    int32
	decSize int32
}

// karFolder contains an index of the available sub-folders and files
type karFolder struct {
	folders map[string]*karFolder
	files   map[string]*karFile
}

func newKarFolder() *karFolder {
	return &karFolder{
		folders: map[string]*karFolder{},
		files:   map[string]*karFile{},
	}
}

// KarWriter writes .kar archives: a "KNAR" header, brotli compressed file contents and a table of
// contents at the end which mirrors the directory tree.
type KarWriter struct {
	hdl    *os.File
	root   *karFolder
	names  sources
	buffer []byte
}

// NewKarWriter creates a new KarWriter instance and opens it for writing
func NewKarWriter(filename string) (*KarWriter, error) {
	hdl, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", filename)
	}

	// skip the header which consists of 4 chars and 3 int32s
	_, err = hdl.Seek(int64(4+12), io.SeekStart)
	if err != nil {
		hdl.Close()
		return nil, err
	}

	return &KarWriter{
		hdl:    hdl,
		root:   newKarFolder(),
		names:  sources{},
		buffer: make([]byte, 4096),
	}, nil
}

func (w *KarWriter) folder(parts []string) (*karFolder, error) {
	current := w.root
	for _, part := range parts {
		if _, isFile := current.files[part]; isFile {
			return nil, expected.Errorf("Archive entry %s is both a file and a directory", part)
		}

		next, ok := current.folders[part]
		if !ok {
			next = newKarFolder()
			current.folders[part] = next
		}
		current = next
	}

	return current, nil
}

// AddFile implements Writer
func (w *KarWriter) AddFile(sourcePath, name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}

	parts := strings.Split(name, "/")
	dir, err := w.folder(parts[:len(parts)-1])
	if err != nil {
		return err
	}

	filename := parts[len(parts)-1]
	if _, exists := dir.folders[filename]; exists {
		return expected.Errorf("Archive entry %s is both a file and a directory", name)
	}

	pending, err := w.names.claim(sourcePath, name)
	if err != nil || !pending {
		return err
	}

	reader, err := os.Open(sourcePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", sourcePath)
	}
	defer reader.Close()

	item := new(karFile)
	offset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.offset = int32(offset)
	brw := brotli.NewWriterLevel(w.hdl, brotli.BestCompression)

	decSize, err := io.CopyBuffer(brw, reader, w.buffer)
	if err != nil {
		return eris.Wrapf(err, "Failed to pack %s", sourcePath)
	}

	err = brw.Close()
	if err != nil {
		return err
	}

	newPos, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.size = int32(newPos - offset)
	item.decSize = int32(decSize)
	dir.files[filename] = item

	return nil
}

// Close writes the central index and closes the archive
func (w *KarWriter) Close() error {
	items := int32(0)
	buffer := make([]byte, 48)
	tocOffset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		w.hdl.Close()
		return err
	}
	err = writeDirectoryEntries(w.root, w.hdl, &items, buffer)
	if err != nil {
		w.hdl.Close()
		return err
	}

	_, err = w.hdl.Seek(0, io.SeekStart)
	if err != nil {
		w.hdl.Close()
		return err
	}

	copy(buffer, "KNAR")
	binary.LittleEndian.PutUint32(buffer[4:8], 2)
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(tocOffset))
	binary.LittleEndian.PutUint32(buffer[12:16], uint32(items))

	_, err = w.hdl.Write(buffer[:16])
	if err != nil {
		w.hdl.Close()
		return err
	}

	return w.hdl.Close()
}

func writeEntry(hdl io.Writer, buffer []byte, name string, file *karFile) error {
	var offset, size, decSize int32
	if file != nil {
		offset, size, decSize = file.offset, file.size, file.decSize
	}

	binary.LittleEndian.PutUint32(buffer[:4], uint32(offset))
	binary.LittleEndian.PutUint32(buffer[4:8], uint32(size))
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(decSize))
	binary.LittleEndian.PutUint16(buffer[12:14], uint16(len(name)))
	_, err := hdl.Write(buffer[:14])
	if err != nil {
		return err
	}

	_, err = io.WriteString(hdl, name)
	return err
}

func sortedKeys(m interface{}) []string {
	var keys []string
	switch m := m.(type) {
	case map[string]*karFolder:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string]*karFile:
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// writeDirectoryEntries writes folders as "name ... .." brackets followed by the folder's files
func writeDirectoryEntries(folder *karFolder, hdl io.Writer, items *int32, buffer []byte) error {
	for _, name := range sortedKeys(folder.folders) {
		err := writeEntry(hdl, buffer, name, nil)
		if err != nil {
			return err
		}

		err = writeDirectoryEntries(folder.folders[name], hdl, items, buffer)
		if err != nil {
			return err
		}

		err = writeEntry(hdl, buffer, "..", nil)
		if err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(folder.files) {
		err := writeEntry(hdl, buffer, name, folder.files[name])
		if err != nil {
			return err
		}
	}

	*items += int32(len(folder.folders)*2 + len(folder.files))
	return nil
}
