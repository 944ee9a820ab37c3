package runbooks

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Runbook is a named, ordered command sequence for a known fault
// pattern. Commands must be idempotent; a retried task re-runs the
// whole sequence from the start.
type Runbook struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	RiskLevel   models.RiskLevel `yaml:"risk_level"`
	Commands    []string         `yaml:"commands"`
}

type catalogFile struct {
	Runbooks []Runbook `yaml:"runbooks"`
	Denylist []string  `yaml:"denylist"`
}

// Catalog holds the loaded runbooks and the command denylist.
type Catalog struct {
	mu       sync.RWMutex
	runbooks map[string]Runbook
	denylist []*regexp.Regexp
}

// Default denylist: unscoped destructive operations are never run,
// regardless of approval.
var defaultDenylist = []string{
	`rm\s+(-[a-zA-Z]*\s+)*(/|/\*)(\s|$)`,
	`mkfs`,
	`dd\s+.*of=/dev/`,
	`:\(\)\s*\{.*\};:`,
	`shutdown`,
	`reboot\s*$`,
}

// Load reads the runbook catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runbook catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse runbook catalog: %w", err)
	}

	return build(file)
}

// NewCatalog builds a catalog from already-parsed runbooks. Used by
// tests and embedded defaults.
func NewCatalog(books []Runbook, denylist []string) (*Catalog, error) {
	return build(catalogFile{Runbooks: books, Denylist: denylist})
}

func build(file catalogFile) (*Catalog, error) {
	c := &Catalog{runbooks: make(map[string]Runbook)}

	for _, rb := range file.Runbooks {
		if rb.Name == "" {
			return nil, fmt.Errorf("runbook with empty name")
		}
		if len(rb.Commands) == 0 {
			return nil, fmt.Errorf("runbook %s has no commands", rb.Name)
		}
		if !rb.RiskLevel.Valid() {
			return nil, fmt.Errorf("runbook %s has invalid risk level %q", rb.Name, rb.RiskLevel)
		}
		if _, dup := c.runbooks[rb.Name]; dup {
			return nil, fmt.Errorf("duplicate runbook name %s", rb.Name)
		}
		c.runbooks[rb.Name] = rb
	}

	patterns := append([]string{}, defaultDenylist...)
	patterns = append(patterns, file.Denylist...)
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid denylist pattern %q: %w", p, err)
		}
		c.denylist = append(c.denylist, re)
	}

	return c, nil
}

// Get returns a runbook by name.
func (c *Catalog) Get(name string) (Runbook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rb, ok := c.runbooks[name]
	return rb, ok
}

// All returns every runbook in the catalog.
func (c *Catalog) All() []Runbook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	books := make([]Runbook, 0, len(c.runbooks))
	for _, rb := range c.runbooks {
		books = append(books, rb)
	}
	return books
}

// CheckDenied returns the first denylisted command in the runbook, or
// empty string when the runbook is clean.
func (c *Catalog) CheckDenied(rb Runbook) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cmd := range rb.Commands {
		for _, re := range c.denylist {
			if re.MatchString(cmd) {
				return cmd
			}
		}
	}
	return ""
}
