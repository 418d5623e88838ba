package tool

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Store exposes tool lookup for HTTP handlers.
type Store interface {
	List() []Tool
	FindByID(id string) (Tool, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Tool
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied tools.
func NewMemoryStore(items []Tool) *MemoryStore {
	return &MemoryStore{items: append([]Tool(nil), items...)}
}

// List returns every configured tool, enabled or not.
func (s *MemoryStore) List() []Tool {
	return append([]Tool(nil), s.items...)
}

// FindByID looks up a tool by identifier.
func (s *MemoryStore) FindByID(id string) (Tool, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Tool{}, false
}

type catalogFile struct {
	Tools []Tool `yaml:"tools"`
}

// ParseCatalog decodes a YAML catalog of the form `tools: [{id, name, agent_id, enabled}]`.
func ParseCatalog(data []byte) ([]Tool, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Tools))
	for i, t := range file.Tools {
		if t.ID == "" {
			return nil, fmt.Errorf("parse tool catalog: entry %d has no id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("parse tool catalog: duplicate id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return file.Tools, nil
}

// LoadFile reads a catalog from disk. An empty path yields the seed catalog.
func LoadFile(path string) ([]Tool, error) {
	if path == "" {
		return Seed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return ParseCatalog(data)
}
