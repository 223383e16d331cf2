// Package platform resolves which target platforms a configuration entry applies to.
package platform

import (
	"runtime"
)

// Info describes one target platform
type Info struct {
	Name      string                 `yaml:"name" json:"name"`
	Env       map[string]string      `yaml:"env,omitempty" json:"env,omitempty"`
	Variables map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Specifier is embedded by every configuration entry that can be restricted to a set of platforms
type Specifier struct {
	Multiplatform bool     `yaml:"multiplatform,omitempty"`
	Platform      string   `yaml:"platform,omitempty"`
	Platforms     []string `yaml:"platforms,omitempty"`
}

// IsSet reports whether the specifier names any platform at all
func (s Specifier) IsSet() bool {
	return len(s.Platforms) > 0 || s.Platform != "" || s.Multiplatform
}

// Names returns the explicitly requested platform names (nil for multiplatform or unset specifiers)
func (s Specifier) Names() []string {
	if len(s.Platforms) > 0 {
		return s.Platforms
	}

	if s.Platform != "" {
		return []string{s.Platform}
	}

	return nil
}

// Matrix is the resolved list of platforms for one configuration entry
type Matrix struct {
	Platforms []Info
	// Specified is false if the matrix defaulted to the host platform
	Specified bool
}

// Host returns the name of the platform we're running on
func Host() string {
	return runtime.GOOS
}

// Resolve matches spec against the available platforms. Filtered results keep the order of available.
func Resolve(spec Specifier, available []Info, host string) Matrix {
	if len(spec.Platforms) > 0 {
		return Matrix{Platforms: Filter(available, spec.Platforms), Specified: true}
	}

	if spec.Platform != "" {
		platforms := []Info{}
		for _, info := range available {
			if info.Name == spec.Platform {
				platforms = append(platforms, info)
				break
			}
		}

		return Matrix{Platforms: platforms, Specified: true}
	}

	if spec.Multiplatform {
		return Matrix{Platforms: Copy(available), Specified: true}
	}

	return Matrix{Platforms: []Info{{Name: host}}, Specified: false}
}

// ResolveKit builds the matrix for kit dependencies. Platform entries are synthesized from the
// requested names instead of being looked up in the project's platform list.
func ResolveKit(spec Specifier, available []Info, host string) Matrix {
	if names := spec.Names(); names != nil {
		platforms := make([]Info, len(names))
		for idx, name := range names {
			platforms[idx] = Info{Name: name}
		}

		return Matrix{Platforms: platforms, Specified: true}
	}

	if spec.Multiplatform {
		return Matrix{Platforms: Copy(available), Specified: true}
	}

	return Matrix{Platforms: []Info{{Name: host}}, Specified: false}
}

// Copy returns a shallow copy of the given list
func Copy(list []Info) []Info {
	result := make([]Info, len(list))
	copy(result, list)
	return result
}

// Filter keeps only the platforms whose names are in allowed. An empty allow-list keeps everything.
func Filter(list []Info, allowed []string) []Info {
	if len(allowed) == 0 {
		return list
	}

	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}

	result := make([]Info, 0, len(list))
	for _, info := range list {
		if set[info.Name] {
			result = append(result, info)
		}
	}
	return result
}
