package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/formpilot/dbopen"
	"github.com/hazyhaar/formpilot/matcher"
)

// LoadProfile returns the stored profile (empty when none was saved).
func (s *Store) LoadProfile(ctx context.Context) (matcher.Profile, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM profile`)
	if err != nil {
		return nil, fmt.Errorf("store: load profile: %w", err)
	}
	defer rows.Close()

	p := matcher.Profile{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: load profile: %w", err)
		}
		p[k] = v
	}
	return p, rows.Err()
}

// SaveProfile replaces the stored profile.
func (s *Store) SaveProfile(ctx context.Context, p matcher.Profile) error {
	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM profile`); err != nil {
			return err
		}
		for _, k := range p.Keys() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO profile (key, value, updated_at) VALUES (?, ?, ?)`,
				k, p[k], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save profile: %w", err)
	}
	return nil
}
