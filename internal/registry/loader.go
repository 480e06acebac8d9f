package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk shape of a registry file.
type fileSchema struct {
	Domains map[string]*Domain `yaml:"domains"`
}

// LoadFile reads and validates a registry YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(data)
}

// Parse validates registry YAML content.
func Parse(data []byte) (*Registry, error) {
	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry yaml: %w", err)
	}
	if len(f.Domains) == 0 {
		return nil, fmt.Errorf("registry defines no domains")
	}
	return New(f.Domains)
}

// DefaultPath returns the project-local registry path.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".gantry", "registry.yaml")
}

// DefaultContent is the registry written by `gantry init`. It encodes the
// stock backend ordering (schema before endpoints before pages) as a
// starting point for editing.
const DefaultContent = `# Capability registry: specialist roles per domain and their blocking order.
# An edge means tasks of "after" wait until a task of "before" has completed
# in the same epic. Set all_instances: true to wait for every such task.
domains:
  backend:
    capabilities:
      - database-architect
      - api-architect
      - page-builder
    edges:
      - before: database-architect
        after: api-architect
      - before: api-architect
        after: page-builder
    max_parallel:
      page-builder: 3
`

// WriteDefault writes the default registry file, creating parent directories.
// It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("registry already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultContent), 0644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}
