// CLAUDE:SUMMARY SQLite persistence for profile, macros, override mappings, settings and replay history.
// Package store provides the SQLite persistence layer for formpilot.
//
// Each save runs in one transaction through dbopen.RunTx, so a failed save
// leaves the previous state intact. Callers keep their in-memory state on
// failure.
package store

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formpilot/dbopen"
)

var (
	ErrEmptyMacro  = errors.New("store: macro has no events")
	ErrMacroExists = errors.New("store: macro name already used")
)

// Store is the formpilot database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
