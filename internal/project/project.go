// Package project loads the project metadata file (info.yaml) that the
// helper tool turns into a flow configuration. Only the fields this
// orchestrator needs are modeled; the rest of the document is owned by the
// helper tool.
package project

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Info struct {
	Project Project `yaml:"project"`
}

type Project struct {
	Title       string   `yaml:"title"`
	Author      string   `yaml:"author"`
	TopModule   string   `yaml:"top_module"`
	SourceFiles []string `yaml:"source_files"`
	ClockHz     int      `yaml:"clock_hz"`
}

func Load(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("read project metadata: %w", err)
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parse project metadata: %w", err)
	}
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (i Info) Validate() error {
	if strings.TrimSpace(i.Project.TopModule) == "" {
		return errors.New("project top module is required")
	}
	if len(i.Project.SourceFiles) == 0 {
		return errors.New("project source files are required")
	}
	for _, f := range i.Project.SourceFiles {
		if strings.TrimSpace(f) == "" {
			return errors.New("project source files must not be blank")
		}
	}
	return nil
}
