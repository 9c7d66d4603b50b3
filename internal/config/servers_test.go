package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeServersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write servers file: %v", err)
	}
	return path
}

func TestLoadServersFile(t *testing.T) {
	path := writeServersFile(t, `
servers:
  - key: host-A
    name: vps-1
    host: 10.0.0.5
    terminal_port: 7700
projects:
  - key: proj-1
    name: My App
    slug: my-app
    server_key: host-A
`)

	spec, err := LoadServersFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(spec.Servers) != 1 || len(spec.Projects) != 1 {
		t.Fatalf("spec = %+v", spec)
	}
	if spec.Servers[0].Key != "host-A" || spec.Servers[0].TerminalPort != 7700 {
		t.Errorf("server = %+v", spec.Servers[0])
	}
	if spec.Projects[0].Slug != "my-app" || spec.Projects[0].ServerKey != "host-A" {
		t.Errorf("project = %+v", spec.Projects[0])
	}
}

func TestLoadServersFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"server missing host", "servers:\n  - key: host-A\n"},
		{"server missing key", "servers:\n  - host: 10.0.0.5\n"},
		{"project missing key", "projects:\n  - name: orphan\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeServersFile(t, tt.content)
			if _, err := LoadServersFile(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadServersFileMissing(t *testing.T) {
	if _, err := LoadServersFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
