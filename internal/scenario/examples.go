package scenario

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/model"
)

//go:embed examples/*.yaml
var examplesFS embed.FS

// Examples returns the built-in teaching scenarios in file order.
func Examples() ([]Document, error) {
	return LoadFromFS(examplesFS, "examples/*.yaml")
}

// LoadFromFS decodes and validates every YAML document matching pattern.
func LoadFromFS(fsys fs.FS, pattern string) ([]Document, error) {
	paths, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read scenario %s: %w", path, err)
		}
		doc, err := Decode(data, FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Seeder is the store surface needed to install example scenarios.
type Seeder interface {
	CountScenarios(ctx context.Context) (int64, error)
	CreateScenario(ctx context.Context, name string, def model.ScenarioDefinition) (model.Scenario, error)
}

type SeedResult struct {
	Skipped bool
	Created []model.Scenario
	Failed  []string
}

// SeedExamples installs the built-in scenarios into an empty catalog. A
// catalog that already has scenarios is left alone. A failing insert is
// logged and the remaining examples are still attempted.
func SeedExamples(ctx context.Context, s Seeder, log *zap.Logger) (SeedResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	n, err := s.CountScenarios(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	if n > 0 {
		return SeedResult{Skipped: true}, nil
	}
	docs, err := Examples()
	if err != nil {
		return SeedResult{}, err
	}

	var res SeedResult
	for _, doc := range docs {
		sc, err := s.CreateScenario(ctx, doc.Name, doc.Definition())
		if err != nil {
			log.Error("error creating scenario", zap.String("name", doc.Name), zap.Error(err))
			res.Failed = append(res.Failed, doc.Name)
			continue
		}
		log.Info("seeded example scenario", zap.Int64("scenario_id", sc.ID), zap.String("name", sc.Name))
		res.Created = append(res.Created, sc)
	}
	return res, nil
}
