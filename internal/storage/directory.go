package storage

import (
	"context"
	"fmt"
	"strings"

	"copier_bridge/internal/models"
)

// resolveChunk keeps IN lists well below SQLite's bound parameter limit
const resolveChunk = 500

// ResolveLabels joins account names against the customer/agency registry.
// Unmatched names are absent from the result.
func (s *Storage) ResolveLabels(ctx context.Context, names []string) (map[string]models.Labels, error) {
	labels := make(map[string]models.Labels, len(names))

	for start := 0; start < len(names); start += resolveChunk {
		end := min(start+resolveChunk, len(names))
		if err := s.resolveLabelsChunk(ctx, names[start:end], labels); err != nil {
			return nil, err
		}
	}

	return labels, nil
}

func (s *Storage) resolveLabelsChunk(ctx context.Context, names []string, out map[string]models.Labels) error {
	if len(names) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ca.account_name, c.name, coalesce(a.name, '')
		FROM customer_accounts ca
		JOIN customers c ON c.id = ca.customer_id
		LEFT JOIN agencies a ON a.id = c.agency_id
		WHERE ca.account_name IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to resolve %d accounts: %w", len(names), err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var l models.Labels
		if err := rows.Scan(&name, &l.ClientName, &l.AgencyName); err != nil {
			return err
		}

		out[name] = l
	}

	return rows.Err()
}
