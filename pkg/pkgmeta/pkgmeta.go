// Package pkgmeta reads the name and version of the host package from the closest package.json.
package pkgmeta

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/expected"
)

// FileName is the metadata file searched for in the configuration directory and its parents
const FileName = "package.json"

// characters left untouched by URI component encoding, lower case only
var validName = regexp.MustCompile(`^[a-z0-9\-_.!~*'()]+$`)

// Data holds the fields we care about
type Data struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Package is a located package file. Dir is the project directory.
type Package struct {
	Dir  string
	Path string
	Data Data
}

// Find searches dir and its parents for a package file. If there is none, the returned package
// points at dir and carries no data.
func Find(dir string) (*Package, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", dir)
	}

	current := dir
	for {
		candidate := filepath.Join(current, FileName)
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return Load(candidate)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return &Package{Dir: dir}, nil
		}
		current = parent
	}
}

// Load parses and validates the given package file
func Load(filename string) (*Package, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	pkg := &Package{
		Dir:  filepath.Dir(filename),
		Path: filename,
	}

	err = json.Unmarshal(content, &pkg.Data)
	if err != nil {
		return nil, expected.Errorf("Error loading `%s` file: %s", filename, err)
	}

	if !validName.MatchString(pkg.Data.Name) {
		return nil, expected.Errorf("Invalid package name \"%s\" in %s", pkg.Data.Name, filename)
	}

	_, err = semver.StrictNewVersion(pkg.Data.Version)
	if err != nil {
		return nil, expected.Errorf("Invalid package version \"%s\" in %s", pkg.Data.Version, filename)
	}

	return pkg, nil
}
