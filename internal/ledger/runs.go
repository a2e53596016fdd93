package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrsinham/rtcurate/internal/outcome"
)

// ErrNoRuns is returned by LastRun on an empty ledger.
var ErrNoRuns = errors.New("no run recorded")

// Run is one recorded curation run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	InputDir   string
	OutputDir  string
	Files      int
	Unreadable int
	Collisions int
	Warnings   []string
	Outcomes   []outcome.Outcome
	// Volumes are the converted volumes queued for classification.
	Volumes []string
}

// RecordRun stores run with its outcomes and volumes in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("record run: empty run id")
	}
	return retryOnBusy(ctx, func() error {
		return s.recordRun(ctx, run)
	})
}

func (s *Store) recordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, input_dir, output_dir, files, unreadable, collisions, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.InputDir, run.OutputDir,
		run.Files, run.Unreadable, run.Collisions, strings.Join(run.Warnings, "\n"),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, o := range run.Outcomes {
		var errText string
		if o.Err != nil {
			errText = o.Err.Error()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, kind, subject, timepoint, series, stage, detail, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, o.Kind.String(), o.Subject, o.Timepoint, o.Series, o.Stage, o.Detail, errText,
		)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	for _, v := range run.Volumes {
		if _, err := tx.ExecContext(ctx, "INSERT INTO volumes (run_id, path) VALUES (?, ?)", run.ID, v); err != nil {
			return fmt.Errorf("insert volume: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, fully loaded.
func (s *Store) LastRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("query last run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun loads the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		run               Run
		started, finished string
		warnings          string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, input_dir, output_dir, files, unreadable, collisions, warnings
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &started, &finished, &run.InputDir, &run.OutputDir, &run.Files, &run.Unreadable, &run.Collisions, &warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNoRuns)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run %s: %w", id, err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	if warnings != "" {
		run.Warnings = strings.Split(warnings, "\n")
	}

	if run.Outcomes, err = s.Outcomes(ctx, id); err != nil {
		return Run{}, err
	}
	if run.Volumes, err = s.Volumes(ctx, id); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Outcomes returns the outcomes of a run in insertion order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]outcome.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, subject, timepoint, series, stage, detail, error
		 FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []outcome.Outcome
	for rows.Next() {
		var (
			o             outcome.Outcome
			kind, errText string
		)
		if err := rows.Scan(&kind, &o.Subject, &o.Timepoint, &o.Series, &o.Stage, &o.Detail, &errText); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Kind, _ = outcome.ParseKind(kind)
		if errText != "" {
			o.Err = restoreError(errText)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Volumes returns the queued volume paths of a run.
func (s *Store) Volumes(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM volumes WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query volumes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan volume: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// storedError is an error read back from the ledger. It unwraps to the
// sentinel its message ends with, so errors.Is keeps working on reloaded
// outcomes.
type storedError struct {
	msg      string
	sentinel error
}

func (e *storedError) Error() string { return e.msg }
func (e *storedError) Unwrap() error { return e.sentinel }

var sentinels = []error{
	outcome.ErrHeaderUnreadable,
	outcome.ErrReferenceMissing,
	outcome.ErrNoApprovedPlan,
	outcome.ErrConversionFailure,
	outcome.ErrDestinationCollision,
}

func restoreError(msg string) error {
	e := &storedError{msg: msg}
	for _, s := range sentinels {
		if strings.HasSuffix(msg, s.Error()) {
			e.sentinel = s
			break
		}
	}
	return e
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
