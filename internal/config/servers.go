package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServersFileSpec is the YAML layout of the optional seed file referenced by
// TERMMUX_SERVERS_FILE. It declares the backend hosts terminals can target
// and the projects bound to them.
type ServersFileSpec struct {
	Servers  []ServerSpec  `yaml:"servers"`
	Projects []ProjectSpec `yaml:"projects"`
}

// ServerSpec declares one backend host (a backend connection key).
type ServerSpec struct {
	Key          string `yaml:"key"`
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	TerminalPort int    `yaml:"terminal_port"`
}

// ProjectSpec declares one project (a context key) and the server it targets.
type ProjectSpec struct {
	Key       string `yaml:"key"`
	Name      string `yaml:"name"`
	Slug      string `yaml:"slug"`
	ServerKey string `yaml:"server_key"`
}

// LoadServersFile parses the seed file at path.
func LoadServersFile(path string) (*ServersFileSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}

	var spec ServersFileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}

	for i, s := range spec.Servers {
		if s.Key == "" || s.Host == "" {
			return nil, fmt.Errorf("servers[%d]: key and host are required", i)
		}
	}
	for i, p := range spec.Projects {
		if p.Key == "" {
			return nil, fmt.Errorf("projects[%d]: key is required", i)
		}
	}

	return &spec, nil
}
