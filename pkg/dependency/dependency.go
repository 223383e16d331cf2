// Package dependency downloads and extracts the external packages a project needs before its
// procedures run.
package dependency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/archive"
	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/fetch"
	"github.com/ngld/henge/pkg/platform"
	"github.com/ngld/henge/pkg/plugin"
	"github.com/ngld/henge/pkg/style"
	"github.com/ngld/henge/pkg/template"
)

// Info is the concrete download and extraction plan for one platform of a dependency
type Info struct {
	Name        string
	Platform    string
	URL         string
	Dir         string
	PackagePath string
	Strip       int
	Sha256      string
}

// Environment is the part of the project a dependency needs
type Environment struct {
	Plugins   []plugin.Plugin
	Platforms []platform.Info
	Host      string
	Dir       string
	DepsDir   string
	Variables map[string]interface{}
	Client    *fetch.Client
}

// Dependency is one entry of the project's dependency list
type Dependency struct {
	config *config.Dependency
	env    *Environment
	matrix platform.Matrix
}

// New resolves the platform matrix of cfg
func New(cfg *config.Dependency, env *Environment) *Dependency {
	var matrix platform.Matrix
	if cfg.Kit {
		matrix = platform.ResolveKit(cfg.Specifier, env.Platforms, env.Host)
	} else {
		matrix = platform.Resolve(cfg.Specifier, env.Platforms, env.Host)
	}

	return &Dependency{
		config: cfg,
		env:    env,
		matrix: matrix,
	}
}

// Name returns the dependency's name
func (d *Dependency) Name() string {
	return d.config.Name
}

// Specified reports whether the dependency was restricted to or enumerated over platforms
func (d *Dependency) Specified() bool {
	return d.matrix.Specified
}

// Kit reports whether the dependency is addressed by its own platform names
func (d *Dependency) Kit() bool {
	return d.config.Kit
}

// Platforms returns the resolved matrix
func (d *Dependency) Platforms() []platform.Info {
	return d.matrix.Platforms
}

func (d *Dependency) data(p platform.Info) map[string]interface{} {
	return template.Merge(d.env.Variables, map[string]interface{}{"platform": p.Name}, p.Variables)
}

func (d *Dependency) resolve(ctx context.Context, p platform.Info) (*Info, error) {
	dctx := plugin.DependencyContext{Platform: p.Name}

	for _, item := range d.env.Plugins {
		resolver, ok := item.(plugin.DependencyResolver)
		if !ok {
			continue
		}

		result, err := resolver.ResolveDependency(ctx, d.config, dctx)
		if err != nil {
			return nil, err
		}
		if result == nil || result.URL == "" {
			continue
		}

		data := d.data(p)
		url := template.Render(result.URL, data)
		ext := archive.Extension(url)

		name := d.config.Name
		defaultDir := filepath.Join(d.env.DepsDir, name)
		packagePath := defaultDir
		if d.matrix.Specified {
			if d.config.Kit {
				packagePath += "-" + p.Name
			} else {
				defaultDir += "-" + p.Name
				packagePath = defaultDir
			}
		}

		dir := defaultDir
		if d.config.TargetDir != "" {
			dir = template.Render(d.config.TargetDir, data)
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(d.env.Dir, dir)
			}
		}

		return &Info{
			Name:        name,
			Platform:    p.Name,
			URL:         url,
			Dir:         filepath.Clean(dir),
			PackagePath: packagePath + ext,
			Strip:       result.Strip,
			Sha256:      strings.ToLower(result.Sha256),
		}, nil
	}

	return nil, expected.Errorf("Unknown dependency \"%s\": no plugin could resolve it for platform \"%s\"", d.config.Name, p.Name)
}

// Prepare downloads and extracts the dependency for every platform of its matrix. Platforms which
// resolve to a URL that was already fetched reuse the earlier package (and its directory unless
// targetDir is overridden).
func (d *Dependency) Prepare(ctx context.Context) ([]Info, error) {
	byURL := make(map[string]*Info)
	downloaded := make(map[string]bool)
	extracted := make(map[string]bool)
	infos := make([]Info, 0, len(d.matrix.Platforms))

	for _, p := range d.matrix.Platforms {
		info, err := d.resolve(ctx, p)
		if err != nil {
			return nil, err
		}

		if previous, ok := byURL[info.URL]; ok {
			info.PackagePath = previous.PackagePath
			if d.config.TargetDir == "" {
				info.Dir = previous.Dir
			}
		} else {
			byURL[info.URL] = info
		}

		if d.matrix.Specified {
			console.Log(ctx).Info().Msgf("Dependency %s %s", style.Project(info.Name), style.Dim("("+info.Platform+")"))
		} else {
			console.Log(ctx).Info().Msgf("Dependency %s", style.Project(info.Name))
		}

		if !downloaded[info.PackagePath] {
			err = d.download(ctx, info)
			if err != nil {
				return nil, err
			}
			downloaded[info.PackagePath] = true
		}

		extractKey := info.PackagePath + "\n" + info.Dir
		if !extracted[extractKey] {
			console.Sub(ctx).Msgf("Extracting to %s", style.Path(info.Dir))
			err = archive.Extract(ctx, info.PackagePath, info.Dir, info.Strip)
			if err != nil {
				return nil, eris.Wrapf(err, "Failed to extract dependency %s", info.Name)
			}
			extracted[extractKey] = true
		}

		infos = append(infos, *info)
	}

	return infos, nil
}

func (d *Dependency) download(ctx context.Context, info *Info) error {
	console.Sub(ctx).Msgf("Downloading %s", info.URL)

	err := os.MkdirAll(filepath.Dir(info.PackagePath), 0o770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory for %s", info.PackagePath)
	}

	tmpPath := filepath.Join(filepath.Dir(info.PackagePath), "."+nanoid.New()+".download")
	handle, err := os.Create(tmpPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", tmpPath)
	}
	defer func() {
		handle.Close()
		os.Remove(tmpPath)
	}()

	hash := sha256.New()
	_, err = d.client().Download(ctx, info.URL, io.MultiWriter(handle, hash))
	if err != nil {
		return err
	}

	if info.Sha256 != "" {
		digest := hex.EncodeToString(hash.Sum(nil))
		if digest != info.Sha256 {
			return expected.Errorf("Checksum check failed for dependency \"%s\": expected %s but got %s", info.Name, info.Sha256, digest)
		}
	}

	err = handle.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", tmpPath)
	}

	err = os.Rename(tmpPath, info.PackagePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to move download to %s", info.PackagePath)
	}
	return nil
}

func (d *Dependency) client() *fetch.Client {
	if d.env.Client == nil {
		d.env.Client = fetch.New()
	}
	return d.env.Client
}

// Locations maps dependency names (optionally qualified with a platform) to their extraction
// directories
type Locations map[string]string

func locationKey(name, platformName string) string {
	return name + "\t" + platformName
}

// Add records the directories of a prepared dependency. Platform-specific entries are only used for
// specified, non-kit dependencies.
func (l Locations) Add(dep *Dependency, infos []Info) {
	for _, info := range infos {
		if dep.Specified() && !dep.Kit() {
			l[locationKey(info.Name, info.Platform)] = info.Dir
		} else {
			l[info.Name] = info.Dir
		}
	}
}

// Lookup returns the directory of the named dependency. If platformName is set, the
// platform-specific entry is preferred.
func (l Locations) Lookup(name, platformName string) (string, bool) {
	if platformName != "" {
		if dir, ok := l[locationKey(name, platformName)]; ok {
			return dir, true
		}
	}

	dir, ok := l[name]
	return dir, ok
}
