package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ngld/henge/pkg/expected"
)

// DefaultFile is used when no configuration file was passed on the command line
const DefaultFile = "dist.config.yml"

// LoadFile parses a configuration file containing either a single project or a list of projects
func LoadFile(filename string) ([]*Project, error) {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, expected.Errorf("File \"%s\" does not exist", filename)
		}
		return nil, eris.Wrapf(err, "failed to stat %s", filename)
	}

	if !info.Mode().IsRegular() {
		return nil, expected.Errorf("Path \"%s\" is expected to be a file", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	projects, err := Parse(data)
	if err != nil {
		if expected.Is(err) {
			return nil, expected.Errorf("%s: %s", filename, err)
		}
		return nil, expected.Errorf("Error parsing configuration file \"%s\": %s", filename, err)
	}
	return projects, nil
}

// Parse decodes a YAML or JSON document into a list of projects
func Parse(data []byte) ([]*Project, error) {
	var doc yaml.Node
	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, err
	}

	if len(doc.Content) == 0 {
		return nil, expected.New("the configuration is empty")
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var projects []*Project
		err = root.Decode(&projects)
		if err != nil {
			return nil, err
		}

		for idx, project := range projects {
			if project == nil {
				return nil, expected.Errorf("line %d: project entry is empty", root.Content[idx].Line)
			}
		}
		return projects, nil
	case yaml.MappingNode:
		project := new(Project)
		err = root.Decode(project)
		if err != nil {
			return nil, err
		}
		return []*Project{project}, nil
	}

	return nil, expected.Errorf("line %d: expected a project or a list of projects", root.Line)
}

// Select maps the loaded projects to their names and returns the requested ones.
// Projects without a name are named after the host package. Without any requested
// names every project is returned in file order.
func Select(projects []*Project, names []string, packageName string) ([]*Project, error) {
	byName := make(map[string]*Project, len(projects))
	for _, project := range projects {
		if project.Name == "" {
			project.Name = packageName
		}

		if project.Name == "" {
			return nil, expected.New("Project name is missing and no package name is available")
		}

		if _, found := byName[project.Name]; found {
			return nil, expected.Errorf("Duplicated project name \"%s\"", project.Name)
		}

		byName[project.Name] = project
	}

	if len(names) == 0 {
		return projects, nil
	}

	result := make([]*Project, 0, len(names))
	for _, name := range names {
		project, found := byName[name]
		if !found {
			return nil, expected.Errorf("Project \"%s\" does not exist", name)
		}

		result = append(result, project)
	}
	return result, nil
}

// SplitList parses a comma separated list, dropping empty items
func SplitList(line string) []string {
	result := make([]string, 0)
	for _, item := range strings.Split(line, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
