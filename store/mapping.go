package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/formpilot/dbopen"
	"github.com/hazyhaar/formpilot/matcher"
)

// LoadMappings returns the full override table.
func (s *Store) LoadMappings(ctx context.Context) (matcher.Mappings, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT context, identity, profile_key FROM custom_mappings`)
	if err != nil {
		return nil, fmt.Errorf("store: load mappings: %w", err)
	}
	defer rows.Close()

	m := matcher.Mappings{}
	for rows.Next() {
		var c, id, key string
		if err := rows.Scan(&c, &id, &key); err != nil {
			return nil, fmt.Errorf("store: load mappings: %w", err)
		}
		m.Set(c, id, key)
	}
	return m, rows.Err()
}

// SaveMappings upserts every entry of m. Entries absent from m are kept.
func (s *Store) SaveMappings(ctx context.Context, m matcher.Mappings) error {
	now := time.Now().UnixMilli()
	contexts := make([]string, 0, len(m))
	for c := range m {
		contexts = append(contexts, c)
	}
	sort.Strings(contexts)

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, c := range contexts {
			for id, key := range m[c] {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO custom_mappings (context, identity, profile_key, updated_at)
					VALUES (?, ?, ?, ?)
					ON CONFLICT(context, identity) DO UPDATE SET
						profile_key = excluded.profile_key,
						updated_at = excluded.updated_at`,
					c, id, key, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save mappings: %w", err)
	}
	return nil
}

// DeleteMapping removes one override.
func (s *Store) DeleteMapping(ctx context.Context, site, identity string) error {
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM custom_mappings WHERE context = ? AND identity = ?`, site, identity); err != nil {
		return fmt.Errorf("store: delete mapping: %w", err)
	}
	return nil
}
