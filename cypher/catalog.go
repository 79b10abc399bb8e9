package cypher

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the versioned schema description the generation prompt is
// built from: node and relationship shapes, the clause type names, user
// phrase aliases and canonical query patterns.
type Catalog struct {
	Version       int       `yaml:"version"`
	Nodes         []string  `yaml:"nodes"`
	Relationships []string  `yaml:"relationships"`
	ClauseTypes   []string  `yaml:"clause_types"`
	Aliases       []Alias   `yaml:"aliases"`
	Patterns      []Pattern `yaml:"patterns"`
	Rules         []string  `yaml:"rules"`
	OutputFormat  string    `yaml:"output_format"`
}

// Alias maps user phrasings to exact clause type names.
type Alias struct {
	Phrases []string `yaml:"phrases"`
	Types   []string `yaml:"types"`
}

// Pattern is a named example query.
type Pattern struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("cypher: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Nodes) == 0 || len(c.ClauseTypes) == 0 {
		return fmt.Errorf("catalog v%d: nodes and clause_types are required", c.Version)
	}
	known := make(map[string]bool, len(c.ClauseTypes))
	for _, t := range c.ClauseTypes {
		known[t] = true
	}
	for _, a := range c.Aliases {
		for _, t := range a.Types {
			if !known[t] {
				return fmt.Errorf("catalog v%d: alias %q targets unknown clause type %q",
					c.Version, strings.Join(a.Phrases, "/"), t)
			}
		}
	}
	return nil
}

// HasClauseType reports whether name is an exact catalog clause type.
func (c *Catalog) HasClauseType(name string) bool {
	for _, t := range c.ClauseTypes {
		if t == name {
			return true
		}
	}
	return false
}
