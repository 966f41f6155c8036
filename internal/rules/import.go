package rules

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

// Registry is the admin rules endpoint; *client.Resource[models.Rule]
// satisfies it
type Registry interface {
	List(ctx context.Context, query url.Values) ([]models.Rule, error)
	Create(ctx context.Context, rule models.Rule) (models.ID, error)
}

var _ Registry = (*client.Resource[models.Rule])(nil)

// Result reports what an import did
type Result struct {
	Created map[string]models.ID
	Skipped []string
	Failed  map[string]error
}

// Import creates the rules the registry does not hold yet. Rules whose
// name already exists are skipped. A failed create does not stop the
// remaining rules.
func Import(ctx context.Context, registry Registry, rules []models.Rule, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := registry.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing rules: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, rule := range existing {
		known[rule.Name] = true
	}

	result := &Result{
		Created: make(map[string]models.ID),
		Failed:  make(map[string]error),
	}
	for _, rule := range rules {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if known[rule.Name] {
			result.Skipped = append(result.Skipped, rule.Name)
			continue
		}
		rule.ID = ""
		id, err := registry.Create(ctx, rule)
		if err != nil {
			logger.Error("failed to create rule", "name", rule.Name, "error", err)
			result.Failed[rule.Name] = err
			continue
		}
		known[rule.Name] = true
		result.Created[rule.Name] = id
		logger.Info("rule created", "name", rule.Name, "id", id, "score", rule.Score)
	}

	return result, nil
}
