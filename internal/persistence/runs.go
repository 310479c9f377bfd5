package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/grantwriter/internal/report"
)

// SaveRun archives a finished run. Saving the same run again replaces it.
func (s *SQLiteStore) SaveRun(ctx context.Context, out *report.FinalOutput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, org_name, background, documents, status, reason, final_deliverable, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_name = excluded.org_name,
			background = excluded.background,
			documents = excluded.documents,
			status = excluded.status,
			reason = excluded.reason,
			final_deliverable = excluded.final_deliverable,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			archived_at = CURRENT_TIMESTAMP
	`, out.RunID, out.OrgName, out.Background, strings.Join(out.Documents, "\n"), out.Status, out.Reason,
		nullString(out.FinalDeliverable), formatTime(out.StartedAt), formatTime(out.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE run_id = ?`, out.RunID); err != nil {
		return fmt.Errorf("failed to delete old sections: %w", err)
	}

	for i, sec := range out.Sections {
		var completed sql.NullString
		if sec.CompletedAt != nil {
			completed = sql.NullString{String: formatTime(*sec.CompletedAt), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sections (run_id, position, task, role, executed_by, status, output, failure_reason, error_kind, attempts, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, out.RunID, i, sec.Task, sec.Role, sec.ExecutedBy, sec.Status, nullString(sec.Output),
			sec.FailureReason, sec.ErrorKind, sec.Attempts, completed)
		if err != nil {
			return fmt.Errorf("failed to insert section %s: %w", sec.Task, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun loads an archived run by ID or by a unique ID prefix.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*report.FinalOutput, error) {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		out                 report.FinalOutput
		documents           string
		final               sql.NullString
		startedAt, finished string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, org_name, background, documents, status, reason, final_deliverable, started_at, finished_at
		FROM runs WHERE id = ?
	`, fullID).Scan(&out.RunID, &out.OrgName, &out.Background, &documents, &out.Status, &out.Reason, &final, &startedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if documents != "" {
		out.Documents = strings.Split(documents, "\n")
	}
	out.FinalDeliverable = stringPtr(final)
	if out.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if out.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}

	sections, err := s.sections(ctx, fullID)
	if err != nil {
		return nil, err
	}
	out.Sections = sections
	return &out, nil
}

func (s *SQLiteStore) sections(ctx context.Context, runID string) ([]report.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task, role, executed_by, status, output, failure_reason, error_kind, attempts, completed_at
		FROM sections WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var sections []report.Section
	for rows.Next() {
		var (
			sec       report.Section
			output    sql.NullString
			completed sql.NullString
		)
		if err := rows.Scan(&sec.Task, &sec.Role, &sec.ExecutedBy, &sec.Status, &output,
			&sec.FailureReason, &sec.ErrorKind, &sec.Attempts, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sec.Output = stringPtr(output)
		if completed.Valid {
			t, err := parseTime(completed.String)
			if err != nil {
				return nil, err
			}
			sec.CompletedAt = &t
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *SQLiteStore) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, stripWildcards(id)+"%", id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve run ID: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("failed to scan run ID: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case len(matches) == 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case matches[0] == id || len(matches) == 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// ListRuns returns the most recent runs first. limit <= 0 lists all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.org_name, r.status, r.started_at, r.finished_at,
			COUNT(s.position), COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0)
		FROM runs r LEFT JOIN sections s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id
		LIMIT ?
	`, report.StatusSucceeded, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			sum                 RunSummary
			startedAt, finished string
		)
		if err := rows.Scan(&sum.ID, &sum.OrgName, &sum.Status, &startedAt, &finished, &sum.Sections, &sum.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if sum.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// stripWildcards removes LIKE wildcards; run IDs never contain them.
func stripWildcards(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
