package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/formpilot/macro"
)

// SaveRun appends a replay report to the history.
func (s *Store) SaveRun(ctx context.Context, r *macro.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode run: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO replay_runs (id, macro, executed, skipped, failed, cancelled, report, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Macro, r.Executed, r.Skipped, r.Failed, boolInt(r.Cancelled),
		string(raw), r.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

// ListRuns returns the latest replay reports of a macro, newest first.
func (s *Store) ListRuns(ctx context.Context, name string, limit int) ([]*macro.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT report FROM replay_runs WHERE macro = ?
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*macro.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		var r macro.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("store: decode run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// FragileSelectors sums selector failures over the last limit runs of a
// macro and returns those that failed at least minFailures times.
func (s *Store) FragileSelectors(ctx context.Context, name string, limit, minFailures int) (map[string]int, error) {
	runs, err := s.ListRuns(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	total := map[string]int{}
	for _, r := range runs {
		for sel, n := range r.SelectorFailures {
			total[sel] += n
		}
	}
	for sel, n := range total {
		if n < minFailures {
			delete(total, sel)
		}
	}
	return total, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
