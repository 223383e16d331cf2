// Package project coordinates a distribution run: it loads plugins, variables and platforms and
// then prepares dependencies, runs procedures and generates the artifact.
package project

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/artifact"
	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/dependency"
	"github.com/ngld/henge/pkg/fetch"
	"github.com/ngld/henge/pkg/platform"
	"github.com/ngld/henge/pkg/plugin"
	"github.com/ngld/henge/pkg/procedure"
	"github.com/ngld/henge/pkg/style"
	"github.com/ngld/henge/pkg/template"
)

// DefaultDistDir is used if the configuration doesn't set distDir
const DefaultDistDir = "dist"

var remoteURL = regexp.MustCompile(`^https?://`)

// Options describe the context a project is loaded in
type Options struct {
	// Dir is the project directory (the directory containing the host package file)
	Dir string
	// Name and Version are the defaults taken from the host package
	Name    string
	Version string
	// Platforms restricts the platform list if it's not empty
	Platforms []string
	// Local restricts the platform list to the host platform
	Local  bool
	Client *fetch.Client

	Stdout io.Writer
	Stderr io.Writer
}

// Project is one project of the configuration file
type Project struct {
	config *config.Project
	opts   Options

	Name    string
	Version string
	Dir     string
	DistDir string
	DepsDir string
	Host    string

	Platforms         []platform.Info
	PlatformSpecified bool

	Variables map[string]interface{}
	Plugins   []plugin.Plugin
	Locations dependency.Locations

	info       *plugin.ProjectInfo
	client     *fetch.Client
	procedures []*procedure.Procedure
	artifact   *artifact.Artifact
}

// New prepares a project. Nothing is read or fetched until Load is called.
func New(cfg *config.Project, opts Options) *Project {
	p := &Project{
		config:    cfg,
		opts:      opts,
		Name:      cfg.Name,
		Version:   cfg.Version,
		Dir:       opts.Dir,
		Host:      cfg.Host.Platform,
		Locations: dependency.Locations{},
		client:    opts.Client,
	}

	if p.Name == "" {
		p.Name = opts.Name
	}
	if p.Version == "" {
		p.Version = opts.Version
	}
	if p.Host == "" {
		p.Host = platform.Host()
	}
	if p.client == nil {
		p.client = fetch.New()
	}

	p.DistDir = p.resolvePath(cfg.DistDir, DefaultDistDir)
	if cfg.DependencyDir != "" {
		p.DepsDir = p.resolvePath(cfg.DependencyDir, "")
	} else {
		p.DepsDir = filepath.Join(p.DistDir, "deps")
	}

	env := make(map[string]string)
	for _, item := range os.Environ() {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}

	p.Variables = map[string]interface{}{
		"name":    p.Name,
		"version": p.Version,
		"host":    p.Host,
		"env":     env,
	}

	return p
}

func (p *Project) resolvePath(item, fallback string) string {
	if item == "" {
		item = fallback
	}

	item = filepath.FromSlash(item)
	if filepath.IsAbs(item) {
		return filepath.Clean(item)
	}
	return filepath.Join(p.Dir, item)
}

// Info returns the view of the project handed to plugins
func (p *Project) Info() *plugin.ProjectInfo {
	if p.info == nil {
		p.info = &plugin.ProjectInfo{
			Name:      p.Name,
			Version:   p.Version,
			Dir:       p.Dir,
			Variables: p.Variables,
		}
	}
	return p.info
}

// RenderTemplate renders tmpl with the project's variables overlaid by extra
func (p *Project) RenderTemplate(tmpl string, extra ...map[string]interface{}) string {
	return template.Render(tmpl, template.Merge(append([]map[string]interface{}{p.Variables}, extra...)...))
}

// Load instantiates the plugins, collects variables and resolves the platform list. Procedures and
// the artifact configuration are validated here so configuration errors surface before anything
// is modified.
func (p *Project) Load(ctx context.Context) error {
	console.Log(ctx).Info().Msgf("Loading project %s...", style.Project(p.Name))

	plugins, err := plugin.Load(ctx, plugin.Chain(p.config.Plugins), p.Dir, plugin.Options{
		Client: p.client,
		Cache:  plugin.NewMetadataCache(p.client),
	})
	if err != nil {
		return err
	}
	p.Plugins = plugins

	for _, item := range p.Plugins {
		loader, ok := item.(plugin.VariableLoader)
		if !ok {
			continue
		}

		vars, err := loader.LoadVariables(ctx, p.Info())
		if err != nil {
			return eris.Wrapf(err, "Failed to load variables from plugin %s", item.Name())
		}

		for key, value := range vars {
			p.Variables[key] = value
		}
	}

	err = p.loadPlatforms(ctx)
	if err != nil {
		return err
	}

	procEnv := &procedure.Environment{
		Platforms:  p.Platforms,
		Host:       p.Host,
		Dir:        p.Dir,
		TaskRunner: p.config.TaskRunner,
		Variables:  p.Variables,
		Stdout:     p.opts.Stdout,
		Stderr:     p.opts.Stderr,
	}

	p.procedures = make([]*procedure.Procedure, len(p.config.Procedures))
	for idx := range p.config.Procedures {
		p.procedures[idx], err = procedure.New(&p.config.Procedures[idx], procEnv)
		if err != nil {
			return err
		}
	}

	if p.config.Artifact != nil {
		p.artifact, err = artifact.New(p.config.Artifact, &artifact.Environment{
			Project:   p.Info(),
			DistDir:   p.DistDir,
			Platforms: p.Platforms,
			Specified: p.PlatformSpecified,
			Locations: p.Locations,
			Plugins:   p.Plugins,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Project) loadPlatforms(ctx context.Context) error {
	source := p.config.PlatformSource()

	switch {
	case source.Template != "":
		location := p.RenderTemplate(source.Template)
		platforms, err := p.fetchPlatforms(ctx, location)
		if err != nil {
			return err
		}

		p.Platforms = platforms
		p.PlatformSpecified = true
	case source.IsSet():
		p.Platforms = platform.Copy(source.Entries)
		p.PlatformSpecified = true
	default:
		p.Platforms = []platform.Info{{Name: p.Host}}
		p.PlatformSpecified = false
	}

	allowed := p.opts.Platforms
	if p.opts.Local {
		allowed = []string{p.Host}
	}

	if len(allowed) > 0 {
		p.Platforms = platform.Filter(p.Platforms, allowed)
		if len(p.Platforms) == 0 {
			console.Log(ctx).Warn().Msgf("None of the platforms of project %s were selected", style.Project(p.Name))
		}
	}

	return nil
}

func (p *Project) fetchPlatforms(ctx context.Context, location string) ([]platform.Info, error) {
	var data []byte

	if remoteURL.MatchString(location) {
		resp, err := p.client.Get(ctx, location)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to read platform list from %s", location)
		}
	} else {
		location = p.resolvePath(location, "")

		var err error
		data, err = os.ReadFile(location)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to read platform list %s", location)
		}
	}

	return config.DecodePlatforms(data, location)
}

// Distribute prepares dependencies, runs the procedures and generates the artifact
func (p *Project) Distribute(ctx context.Context) error {
	err := os.MkdirAll(p.DistDir, 0o770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", p.DistDir)
	}

	err = p.prepareDependencies(ctx)
	if err != nil {
		return err
	}

	for _, proc := range p.procedures {
		err = proc.Execute(ctx)
		if err != nil {
			return err
		}
	}

	if p.artifact != nil {
		_, err = p.artifact.Generate(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Project) prepareDependencies(ctx context.Context) error {
	if len(p.config.Dependencies) == 0 {
		return nil
	}

	console.Log(ctx).Info().Msg("Preparing dependencies...")

	err := os.MkdirAll(p.DepsDir, 0o770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", p.DepsDir)
	}

	env := &dependency.Environment{
		Plugins:   p.Plugins,
		Platforms: p.Platforms,
		Host:      p.Host,
		Dir:       p.Dir,
		DepsDir:   p.DepsDir,
		Variables: p.Variables,
		Client:    p.client,
	}

	for idx := range p.config.Dependencies {
		dep := dependency.New(&p.config.Dependencies[idx], env)

		infos, err := dep.Prepare(ctx)
		if err != nil {
			return err
		}

		p.Locations.Add(dep, infos)
	}

	return nil
}

// Clean removes the distribution directory
func (p *Project) Clean(ctx context.Context) error {
	console.Log(ctx).Info().Msgf("Cleaning previous distribution of project %s...", style.Project(p.Name))

	err := os.RemoveAll(p.DistDir)
	if err != nil {
		return eris.Wrapf(err, "Failed to remove %s", p.DistDir)
	}
	return nil
}
