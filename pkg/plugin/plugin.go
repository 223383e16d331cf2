// Package plugin defines the capabilities a plugin can provide to a project and keeps the registry
// of built-in plugins. Plugins are consulted in configuration order.
package plugin

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/fetch"
)

// ProjectInfo is the view of a loaded project that is handed to plugins
type ProjectInfo struct {
	Name      string
	Version   string
	Dir       string
	Variables map[string]interface{}
}

// DependencyContext describes the platform a dependency is being resolved for
type DependencyContext struct {
	Platform string
}

// DependencyResult is a resolved download location
type DependencyResult struct {
	URL    string
	Strip  int
	Sha256 string
}

// Metadata is the artifact manifest. It's written next to generated archives and read by
// dependencies which use metadata indirection.
type Metadata struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Commit    string         `json:"commit,omitempty"`
	Artifacts []MetadataItem `json:"artifacts"`
}

// MetadataItem is one generated archive
type MetadataItem struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
	Path     string `json:"path"`
}

// Plugin is the common interface of all plugins. The capabilities below are optional.
type Plugin interface {
	Name() string
}

// VariableLoader contributes template variables. Later plugins overwrite keys of earlier ones.
type VariableLoader interface {
	LoadVariables(ctx context.Context, project *ProjectInfo) (map[string]interface{}, error)
}

// DependencyResolver turns a dependency entry into a download location. A nil result means the
// plugin doesn't know the dependency and the next plugin is asked.
type DependencyResolver interface {
	ResolveDependency(ctx context.Context, dep *config.Dependency, dctx DependencyContext) (*DependencyResult, error)
}

// MetadataProcessor may modify the manifest before any archive is generated
type MetadataProcessor interface {
	ProcessArtifactMetadata(ctx context.Context, metadata *Metadata, project *ProjectInfo) error
}

// Options are shared by all plugins of one run
type Options struct {
	Client *fetch.Client
	Cache  *MetadataCache
}

// Factory creates a plugin instance
type Factory func(opts Options) (Plugin, error)

var registry = map[string]Factory{}

// Register makes a plugin available under the given identifier
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Registered returns the sorted identifiers of all registered plugins
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain wraps the configured plugin identifiers with the built-in variables loader and the
// fallback resolver
func Chain(configured []string) []string {
	ids := make([]string, 0, len(configured)+2)
	ids = append(ids, GitName)
	ids = append(ids, configured...)
	return append(ids, ResolverName)
}

// Load instantiates the given plugins. Identifiers are either registered names or paths to
// Starlark scripts (relative to dir).
func Load(ctx context.Context, ids []string, dir string, opts Options) ([]Plugin, error) {
	if opts.Client == nil {
		opts.Client = fetch.New()
	}
	if opts.Cache == nil {
		opts.Cache = NewMetadataCache(opts.Client)
	}

	plugins := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		if factory, ok := registry[id]; ok {
			plugin, err := factory(opts)
			if err != nil {
				return nil, err
			}

			plugins = append(plugins, plugin)
			continue
		}

		if strings.HasSuffix(id, ScriptExtension) {
			scriptPath := id
			if !filepath.IsAbs(scriptPath) {
				scriptPath = filepath.Join(dir, scriptPath)
			}

			plugin, err := LoadScript(ctx, scriptPath)
			if err != nil {
				return nil, err
			}

			plugins = append(plugins, plugin)
			continue
		}

		return nil, expected.Errorf("Unknown plugin \"%s\"", id)
	}

	return plugins, nil
}
