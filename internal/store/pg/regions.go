package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"opticonnect.org/internal/region"
)

// ListRegions loads every region with its boundary rings, used to
// build the in-process region directory at startup.
func (s *Store) ListRegions(ctx context.Context) ([]region.Region, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, boundary
		from regions
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []region.Region
	for rows.Next() {
		var (
			r           region.Region
			rawBoundary []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &rawBoundary); err != nil {
			return nil, err
		}
		if len(rawBoundary) > 0 {
			if err := json.Unmarshal(rawBoundary, &r.Boundary); err != nil {
				return nil, fmt.Errorf("decode boundary for %s: %w", r.ID, err)
			}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
