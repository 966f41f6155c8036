// Package rules loads scoring rules from YAML files and imports them into
// the portal's admin rule registry.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gradpush/extrapoints/internal/models"
)

// ruleFile is the on-disk layout:
//
//	rules:
//	  - name: National first prize
//	    type: competition
//	    level: national
//	    score: 5
type ruleFile struct {
	Rules []models.Rule `yaml:"rules"`
}

// Loader collects rules keyed by name. A later file redefines a rule
// loaded earlier under the same name.
type Loader struct {
	mu     sync.RWMutex
	rules  map[string]models.Rule
	source map[string]string
	logger *slog.Logger
}

// NewLoader creates an empty loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		rules:  make(map[string]models.Rule),
		source: make(map[string]string),
		logger: logger,
	}
}

// LoadFromDir loads every YAML file in dir and its direct subdirectories.
// Files that fail to parse are skipped and reported together.
func (l *Loader) LoadFromDir(dir string) error {
	l.logger.Info("loading rules from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", filepath.Join("*", "*.yaml"), filepath.Join("*", "*.yml")} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("invalid rules directory %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var failed []string
	for _, file := range files {
		if _, err := l.LoadFromFile(file); err != nil {
			l.logger.Warn("failed to load rules file", "file", file, "error", err)
			failed = append(failed, filepath.Base(file))
		}
	}

	l.logger.Info("rules loaded", "count", l.Len(), "files", len(files))
	if len(failed) > 0 {
		return fmt.Errorf("failed to load %d rules file(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// LoadFromFile loads the rules of one file. Nothing is added when any
// rule in the file is invalid.
func (l *Loader) LoadFromFile(path string) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	l.mu.Lock()
	for _, rule := range rules {
		if prev, ok := l.source[rule.Name]; ok && prev != path {
			l.logger.Warn("rule redefined", "name", rule.Name, "previous", prev, "file", path)
		}
		l.rules[rule.Name] = rule
		l.source[rule.Name] = path
	}
	l.mu.Unlock()

	return rules, nil
}

// Parse decodes and validates a rules document. Status defaults to active.
func Parse(data []byte) ([]models.Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i := range doc.Rules {
		rule := &doc.Rules[i]
		rule.Name = strings.TrimSpace(rule.Name)
		if rule.Status == "" {
			rule.Status = models.RuleActive
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i+1, rule.Name, err)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("%w: duplicate rule name %q", models.ErrValidation, rule.Name)
		}
		seen[rule.Name] = true
	}
	return doc.Rules, nil
}

// Get returns a rule by name
func (l *Loader) Get(name string) (models.Rule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rule, ok := l.rules[name]
	return rule, ok
}

// List returns all loaded rules sorted by type, then name
func (l *Loader) List() []models.Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.Rule, 0, len(l.rules))
	for _, rule := range l.rules {
		result = append(result, rule)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Type != result[j].Type {
			return result[i].Type < result[j].Type
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of loaded rules
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rules)
}
