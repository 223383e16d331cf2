package plugin

import (
	"context"
	"strings"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/fetch"
)

// ResolverName is the identifier of the fallback dependency resolver
const ResolverName = "resolver"

// MetadataCache memoizes fetched dependency manifests by URL for the duration of one run
type MetadataCache struct {
	client  *fetch.Client
	entries map[string]*Metadata
}

// NewMetadataCache creates an empty cache
func NewMetadataCache(client *fetch.Client) *MetadataCache {
	return &MetadataCache{
		client:  client,
		entries: make(map[string]*Metadata),
	}
}

// Get returns the manifest at url, fetching it on first use. name is only used for error messages.
func (c *MetadataCache) Get(ctx context.Context, name, url string) (*Metadata, error) {
	if metadata, ok := c.entries[url]; ok {
		return metadata, nil
	}

	metadata := new(Metadata)
	err := c.client.GetJSON(ctx, url, metadata)
	if err != nil {
		if _, ok := expected.As(err); ok {
			return nil, expected.Errorf("Error parsing metadata of dependency \"%s\"", name)
		}
		return nil, err
	}

	c.entries[url] = metadata
	return metadata, nil
}

// Resolver handles dependencies with a direct `url` or a `metadata` manifest
type Resolver struct {
	cache *MetadataCache
}

func init() {
	Register(ResolverName, func(opts Options) (Plugin, error) {
		return NewResolver(opts.Cache), nil
	})
}

// NewResolver creates a resolver backed by the given cache
func NewResolver(cache *MetadataCache) *Resolver {
	return &Resolver{cache: cache}
}

// Name implements Plugin
func (r *Resolver) Name() string {
	return ResolverName
}

// ResolveDependency implements DependencyResolver
func (r *Resolver) ResolveDependency(ctx context.Context, dep *config.Dependency, dctx DependencyContext) (*DependencyResult, error) {
	if dep.URL != "" {
		return &DependencyResult{URL: dep.URL, Strip: dep.Strip, Sha256: dep.Sha256}, nil
	}

	if dep.Metadata == "" {
		return nil, nil
	}

	metadata, err := r.cache.Get(ctx, dep.Name, dep.Metadata)
	if err != nil {
		return nil, err
	}

	for _, item := range metadata.Artifacts {
		if item.Platform != "" && item.Platform != dctx.Platform {
			continue
		}

		return &DependencyResult{
			URL:    RelativeURL(dep.Metadata, item.Path),
			Strip:  dep.Strip,
			Sha256: dep.Sha256,
		}, nil
	}

	return nil, expected.Errorf("Metadata of dependency \"%s\" has no artifact for platform \"%s\"", dep.Name, dctx.Platform)
}

// RelativeURL replaces the last path segment of base with path
func RelativeURL(base, path string) string {
	return base[:strings.LastIndex(base, "/")+1] + path
}
