// Package directory maps account names to their client and agency labels
// using the read-only customer registry.
package directory

import (
	"context"
	"log/slog"
	"strings"

	"copier_bridge/internal/models"
)

// Registry is the external customer/agency lookup
type Registry interface {
	ResolveLabels(ctx context.Context, names []string) (map[string]models.Labels, error)
}

// Resolver is stateless, it never writes to the registry
type Resolver struct {
	registry Registry
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		logger:   logger,
	}
}

// Resolve returns labels for the names found in the registry. Blank and
// repeated names are ignored, missing names are absent from the map.
func (r *Resolver) Resolve(ctx context.Context, names []string) (map[string]models.Labels, error) {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		unique = append(unique, name)
	}

	if len(unique) == 0 {
		return map[string]models.Labels{}, nil
	}

	labels, err := r.registry.ResolveLabels(ctx, unique)
	if err != nil {
		r.logger.Warn("Directory lookup failed",
			slog.Int("accounts", len(unique)),
			slog.Any("error", err))

		return nil, err
	}

	return labels, nil
}

// LabelsFor returns the labels of name, or empty labels when unmatched
func LabelsFor(labels map[string]models.Labels, name string) models.Labels {
	if l, ok := labels[name]; ok {
		return l
	}

	return models.Labels{}
}
