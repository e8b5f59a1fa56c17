package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// FileSource loads guardrail documents from a directory of *.json files,
// each containing either a single guardrail object or an array of them.
// Files are read in lexical order so a deployment can number them to
// control evaluation order within a scope.
type FileSource struct {
	Dir string
}

// Load implements Source.
func (fs FileSource) Load(_ context.Context) ([]model.Guardrail, error) {
	entries, err := os.ReadDir(fs.Dir)
	if err != nil {
		return nil, fmt.Errorf("guardrail: read source dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var guardrails []model.Guardrail
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(fs.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("guardrail: read %s: %w", name, err)
		}

		var asArray []model.Guardrail
		if err := json.Unmarshal(raw, &asArray); err == nil {
			guardrails = append(guardrails, asArray...)
			continue
		}

		var single model.Guardrail
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("guardrail: decode %s: %w", name, err)
		}
		guardrails = append(guardrails, single)
	}
	return guardrails, nil
}

// StaticSource is a Source backed by an in-memory slice, used by tests and
// by deployments that build their guardrail set programmatically rather
// than from files.
type StaticSource struct {
	Guardrails []model.Guardrail
}

// Load implements Source.
func (s StaticSource) Load(_ context.Context) ([]model.Guardrail, error) {
	return s.Guardrails, nil
}
