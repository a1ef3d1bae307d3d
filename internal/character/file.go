package character

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/easeaico/rolechat/internal/types"
)

const catalogSchema = `{
	"type": "object",
	"required": ["characters"],
	"properties": {
		"characters": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func catalogValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("characters.schema.json", catalogSchema)
	})
	return compiledSchema, schemaErr
}

type catalog struct {
	Characters []types.Character `yaml:"characters"`
}

// FileDirectory serves characters from a YAML catalog loaded once.
type FileDirectory struct {
	byID  map[string]types.Character
	order []string
}

// LoadFile reads and validates a YAML character catalog.
func LoadFile(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates data against the catalog schema and indexes it.
func ParseCatalog(data []byte) (*FileDirectory, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse character catalog: %w", err)
	}
	// Round trip through JSON so the validator sees JSON value types.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to convert character catalog: %w", err)
	}
	var doc any
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert character catalog: %w", err)
	}
	schema, err := catalogValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid character catalog: %w", err)
	}

	var cat catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to decode character catalog: %w", err)
	}

	dir := &FileDirectory{byID: make(map[string]types.Character, len(cat.Characters))}
	for _, c := range cat.Characters {
		if _, dup := dir.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate character id %q", c.ID)
		}
		Normalize(&c)
		dir.byID[c.ID] = c
		dir.order = append(dir.order, c.ID)
	}
	return dir, nil
}

func (d *FileDirectory) GetByID(_ context.Context, id string) (*types.Character, error) {
	c, ok := d.byID[id]
	if !ok {
		return nil, types.ErrCharacterNotFound
	}
	return &c, nil
}

func (d *FileDirectory) List(_ context.Context) ([]types.Character, error) {
	out := make([]types.Character, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out, nil
}
