// Package artifact packages the files of a project into one archive per platform and writes the
// manifest describing them.
package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/archive"
	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/dependency"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/platform"
	"github.com/ngld/henge/pkg/plugin"
	"github.com/ngld/henge/pkg/style"
	"github.com/ngld/henge/pkg/template"
	"github.com/ngld/henge/pkg/walker"
)

// Environment is the part of the project an artifact needs
type Environment struct {
	Project   *plugin.ProjectInfo
	DistDir   string
	Platforms []platform.Info
	Specified bool
	Locations dependency.Locations
	Plugins   []plugin.Plugin
}

// Artifact is the validated artifact configuration of a project
type Artifact struct {
	config   *config.Artifact
	env      *Environment
	mappings []*Mapping
}

// New validates cfg and normalizes its file mappings
func New(cfg *config.Artifact, env *Environment) (*Artifact, error) {
	if cfg == nil {
		return nil, expected.New("Missing `artifact` configuration")
	}

	if cfg.Files == nil {
		return nil, expected.New("Missing `files` field in `artifact` configuration")
	}

	a := &Artifact{
		config:   cfg,
		env:      env,
		mappings: make([]*Mapping, len(cfg.Files)),
	}

	for idx, file := range cfg.Files {
		mapping, err := NormalizeMapping(file)
		if err != nil {
			return nil, err
		}
		a.mappings[idx] = mapping
	}

	return a, nil
}

// Name is used for the manifest file and defaults to the project name
func (a *Artifact) Name() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	return a.env.Project.Name
}

// Mappings returns the normalized file mappings
func (a *Artifact) Mappings() []*Mapping {
	return a.mappings
}

func (a *Artifact) format() string {
	if a.config.Format != "" {
		return a.config.Format
	}
	return archive.FormatZip
}

func (a *Artifact) id(info platform.Info) string {
	tmpl := a.config.ID
	if tmpl == "" {
		if a.env.Specified {
			tmpl = "{name}-{platform}"
		} else {
			tmpl = "{name}"
		}
	}

	overrides := map[string]interface{}{"name": a.Name()}
	if a.env.Specified {
		overrides["platform"] = info.Name
	}
	return template.Render(tmpl, template.Merge(a.env.Project.Variables, info.Variables, overrides))
}

// ManifestPath returns the location of the generated manifest
func (a *Artifact) ManifestPath() string {
	return filepath.Join(a.env.DistDir, a.Name()+".json")
}

func (a *Artifact) resolveBaseDir(mapping *Mapping, platformName string) string {
	project := a.env.Project

	if mapping.Package != "" {
		// platform specific locations only exist for projects with declared platforms
		lookupPlatform := ""
		if a.env.Specified {
			lookupPlatform = platformName
		}

		baseDir, ok := a.env.Locations.Lookup(mapping.Package, lookupPlatform)
		if !ok {
			baseDir = project.Dir
		}

		if mapping.BaseDir != "" {
			baseDir = resolve(baseDir, mapping.BaseDir)
		}
		return baseDir
	}

	if mapping.BaseDir != "" {
		return resolve(project.Dir, mapping.BaseDir)
	}
	return project.Dir
}

func resolve(base, item string) string {
	item = filepath.FromSlash(item)
	if filepath.IsAbs(item) {
		return filepath.Clean(item)
	}
	return filepath.Join(base, item)
}

// Generate writes one archive per platform and the manifest listing them
func (a *Artifact) Generate(ctx context.Context) (*plugin.Metadata, error) {
	project := a.env.Project
	name := a.Name()

	metadata := &plugin.Metadata{
		Name:      name,
		Version:   project.Version,
		Artifacts: []plugin.MetadataItem{},
	}

	for _, item := range a.env.Plugins {
		processor, ok := item.(plugin.MetadataProcessor)
		if !ok {
			continue
		}

		err := processor.ProcessArtifactMetadata(ctx, metadata, project)
		if err != nil {
			return nil, err
		}
	}

	err := os.MkdirAll(a.env.DistDir, 0o770)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", a.env.DistDir)
	}

	for _, info := range a.env.Platforms {
		if a.env.Specified {
			console.Log(ctx).Info().Msgf("Generating artifact of project %s %s...", style.Project(name), style.Dim("("+info.Name+")"))
		} else {
			console.Log(ctx).Info().Msgf("Generating artifact of project %s...", style.Project(name))
		}

		id := a.id(info)
		archivePath := filepath.Join(a.env.DistDir, id+"."+a.format())

		err = a.writeArchive(ctx, archivePath, info.Name)
		if err != nil {
			return nil, err
		}

		console.Log(ctx).Info().Msgf("Artifact generated at path %s.", style.Path(archivePath))

		relPath, err := filepath.Rel(a.env.DistDir, archivePath)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to relativize %s", archivePath)
		}

		entry := plugin.MetadataItem{
			ID:   id,
			Name: filepath.Base(archivePath),
			Path: filepath.ToSlash(relPath),
		}
		if a.env.Specified {
			entry.Platform = info.Name
		}
		metadata.Artifacts = append(metadata.Artifacts, entry)
	}

	encoded, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return nil, eris.Wrap(err, "Failed to encode artifact metadata")
	}

	manifestPath := a.ManifestPath()
	err = os.WriteFile(manifestPath, encoded, 0o660)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to write %s", manifestPath)
	}

	console.Log(ctx).Info().Msgf("Artifact metadata generated at path %s.", style.Path(manifestPath))
	return metadata, nil
}

func (a *Artifact) writeArchive(ctx context.Context, archivePath, platformName string) error {
	writer, err := archive.NewWriter(a.format(), archivePath)
	if err != nil {
		return err
	}

	for _, mapping := range a.mappings {
		if !mapping.Matches(platformName) {
			continue
		}

		baseDir := a.resolveBaseDir(mapping, platformName)
		mappingPath := mapping.Path

		err = mapping.walker.Walk(baseDir, func(item string, captures []walker.Capture) error {
			name := BuildPath(mappingPath, captures)
			console.Sub(ctx).Msgf("%s %s %s", item, style.Dim("->"), name)

			return writer.AddFile(filepath.Join(baseDir, filepath.FromSlash(item)), name)
		})
		if err != nil {
			writer.Close()
			return eris.Wrapf(err, "Failed to package %s", mapping.Pattern)
		}
	}

	err = writer.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", archivePath)
	}
	return nil
}
