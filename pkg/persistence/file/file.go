// Package file provides file-based persistence for workflow definitions,
// instances, rules and selectors. Entities are stored as JSON documents under
// a root directory; intended for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system.
type Persistence struct {
	root          string
	definitions   *DefinitionRepository
	instances     *InstanceRepository
	rules         *RuleRepository
	selectorsRepo *SelectorRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		definitions:   &DefinitionRepository{root: cleanRoot},
		instances:     &InstanceRepository{root: cleanRoot},
		rules:         &RuleRepository{root: cleanRoot},
		selectorsRepo: &SelectorRepository{root: cleanRoot},
	}
}

// Close performs cleanup. Nothing to release for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return p.rules
}

func (p *Persistence) Selectors() persistence.SelectorRepository {
	return p.selectorsRepo
}

// readDocument decodes one JSON document; missing files surface as the given
// sentinel error.
func readDocument(path string, out any, notFound error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}

		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

// writeDocument encodes one JSON document, creating the parent directory on
// demand.
func writeDocument(path string, in any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// listDocuments returns the ids of every JSON document under a directory.
func listDocuments(dir string) ([]string, error) {
	root := os.DirFS(dir)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
