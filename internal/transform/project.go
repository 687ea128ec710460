package transform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the dbt project definition file name.
const ProjectFile = "dbt_project.yml"

// ErrProjectNotFound is returned when the project root is missing.
var ErrProjectNotFound = errors.New("transform project not found")

// Project is the subset of dbt_project.yml the pipeline reads.
type Project struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	Profile    string   `yaml:"profile"`
	ModelPaths []string `yaml:"model-paths"`
	SeedPaths  []string `yaml:"seed-paths"`
	TargetPath string   `yaml:"target-path"`
}

// LoadProject reads dir/dbt_project.yml. A missing directory wraps
// ErrProjectNotFound; a missing project file yields an empty Project.
func LoadProject(dir string) (*Project, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, ProjectFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Project{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProjectFile, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ProjectFile, err)
	}
	return &p, nil
}
