package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/formpilot/dbopen"
	"github.com/hazyhaar/formpilot/macro"
)

// LoadMacros returns every stored macro.
func (s *Store) LoadMacros(ctx context.Context) (macro.Macros, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, events FROM macros`)
	if err != nil {
		return nil, fmt.Errorf("store: load macros: %w", err)
	}
	defer rows.Close()

	out := macro.Macros{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("store: load macros: %w", err)
		}
		var events []macro.Event
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return nil, fmt.Errorf("store: decode macro %q: %w", name, err)
		}
		out[name] = events
	}
	return out, rows.Err()
}

// SaveMacros replaces every stored macro with ms.
func (s *Store) SaveMacros(ctx context.Context, ms macro.Macros) error {
	for name, events := range ms {
		if len(events) == 0 {
			return fmt.Errorf("store: save macros: %q: %w", name, ErrEmptyMacro)
		}
	}
	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM macros`); err != nil {
			return err
		}
		for name, events := range ms {
			if err := upsertMacro(ctx, tx, name, events, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save macros: %w", err)
	}
	return nil
}

// SaveMacro inserts or replaces one macro. Empty sequences are rejected.
func (s *Store) SaveMacro(ctx context.Context, name string, events []macro.Event) error {
	if len(events) == 0 {
		return fmt.Errorf("store: save macro %q: %w", name, ErrEmptyMacro)
	}
	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return upsertMacro(ctx, tx, name, events, now)
	})
	if err != nil {
		return fmt.Errorf("store: save macro %q: %w", name, err)
	}
	return nil
}

func upsertMacro(ctx context.Context, tx *sql.Tx, name string, events []macro.Event, now int64) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO macros (name, events, event_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			events = excluded.events,
			event_count = excluded.event_count,
			updated_at = excluded.updated_at`,
		name, string(raw), len(events), now, now)
	return err
}

// DeleteMacro removes a macro.
func (s *Store) DeleteMacro(ctx context.Context, name string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM macros WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("store: delete macro %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return macro.ErrMacroNotFound
	}
	return nil
}

// RenameMacro renames a macro. The target name must be free.
func (s *Store) RenameMacro(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM macros WHERE name = ?`, to).Scan(&exists)
		switch {
		case err == nil:
			return ErrMacroExists
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE macros SET name = ?, updated_at = ? WHERE name = ?`,
			to, time.Now().UnixMilli(), from)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return macro.ErrMacroNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: rename macro %q: %w", from, err)
	}
	return nil
}
