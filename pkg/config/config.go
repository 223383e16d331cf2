// Package config describes the project configuration file. Fields which accept several shapes
// (a string or a descriptor) are normalized while decoding so the rest of the code only ever
// sees one canonical form.
package config

import (
	"github.com/ngld/henge/pkg/platform"
)

// Project is a single project entry of the configuration file
type Project struct {
	Name          string   `yaml:"name"`
	Version       string   `yaml:"version"`
	DistDir       string   `yaml:"distDir"`
	DependencyDir string   `yaml:"dependencyDir"`
	TaskRunner    string   `yaml:"taskRunner"`
	Plugins       []string `yaml:"plugins"`
	Host          Host     `yaml:"host"`

	Platform  *PlatformEntry `yaml:"platform"`
	Platforms PlatformList   `yaml:"platforms"`

	Dependencies []Dependency `yaml:"dependencies"`
	Procedures   []Procedure  `yaml:"procedures"`
	Artifact     *Artifact    `yaml:"artifact"`
}

// Host describes the machine running the distribution
type Host struct {
	Platform string `yaml:"platform"`
}

// PlatformSource returns the configured platform list. `platforms` takes precedence over `platform`.
func (p *Project) PlatformSource() PlatformList {
	if p.Platforms.IsSet() {
		return p.Platforms
	}

	if p.Platform != nil {
		return PlatformList{Entries: []platform.Info{p.Platform.Info}}
	}

	return PlatformList{}
}

// Dependency describes an external package which is downloaded and extracted before procedures run
type Dependency struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Metadata  string `yaml:"metadata"`
	Strip     int    `yaml:"strip"`
	Sha256    string `yaml:"sha256"`
	Kit       bool   `yaml:"kit"`
	TargetDir string `yaml:"targetDir"`

	platform.Specifier `yaml:",inline"`

	// Fields contains every key of the entry, including those only meaningful to plugins
	Fields map[string]interface{} `yaml:"-"`
}

// Invocation is the canonical form of the `command` and `task` fields
type Invocation struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// Procedure runs a command or a task of the task runner
type Procedure struct {
	Description string                 `yaml:"description"`
	Command     *Invocation            `yaml:"command"`
	Task        *Invocation            `yaml:"task"`
	Cwd         string                 `yaml:"cwd"`
	Env         map[string]interface{} `yaml:"env"`
	Args        []string               `yaml:"args"`

	platform.Specifier `yaml:",inline"`
}

// Artifact describes the archives generated at the end of a distribution
type Artifact struct {
	Name   string        `yaml:"name"`
	ID     string        `yaml:"id"`
	Format string        `yaml:"format"`
	Files  []FileMapping `yaml:"files"`
}

// FileMapping is one packaging rule. The string shorthand sets only Pattern.
type FileMapping struct {
	Pattern string `yaml:"pattern"`
	BaseDir string `yaml:"baseDir"`
	Package string `yaml:"package"`
	Path    string `yaml:"path"`

	Platform  string   `yaml:"platform"`
	Platforms []string `yaml:"platforms"`

	// Line is the position of the mapping in the configuration file
	Line int `yaml:"-"`
}
