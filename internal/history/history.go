// Package history persists harness runs and the service snapshots
// they produced in a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-rig/rig/internal/service"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

type Run struct {
	UUID          string
	Scenario      string
	StartedAt     string
	InProgress    bool
	Success       *bool
	FailureReason *string
	FinishedAt    *string
}

type RunRow struct {
	Run
	ID int
}

func (r RunRow) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("uuid: %q, scenario: %q, started_at: %q, in_progress: %t",
		r.UUID, r.Scenario, r.StartedAt, r.InProgress))
	if r.Success != nil {
		sb.WriteString(fmt.Sprintf(", success: %t", *r.Success))
	} else {
		sb.WriteString(", success: nil")
	}
	if r.FailureReason != nil {
		sb.WriteString(fmt.Sprintf(", failure_reason: %q", *r.FailureReason))
	} else {
		sb.WriteString(", failure_reason: nil")
	}
	if r.FinishedAt != nil {
		sb.WriteString(fmt.Sprintf(", finished_at: %q", *r.FinishedAt))
	} else {
		sb.WriteString(", finished_at: nil")
	}
	return sb.String()
}

func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			scenario TEXT NOT NULL,
			started_at TEXT NOT NULL,
			in_progress BOOLEAN NOT NULL,
			success BOOLEAN DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL,
			finished_at TEXT DEFAULT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_uuid TEXT NOT NULL,
			service_id TEXT NOT NULL,
			snapshot TEXT NOT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Start persists, on success, information that a run identified by 'uuid' is in progress.
// If the run identified by 'uuid' is still in progress, no error is returned,
// if it has already finished ErrAlreadyFinished is returned.
func Start(ctx context.Context, db *sql.DB, uuid, scenario string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context, uuid string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
		}
	}(ctx, uuid)

	var runRow RunRow
	row := tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	)
	err = row.Scan(&runRow.InProgress)
	switch {
	case err == nil && runRow.InProgress:
		return nil
	case err == nil && !runRow.InProgress:
		return ErrAlreadyFinished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (uuid, scenario, started_at, in_progress) VALUES (?,?,?,?);`,
		uuid, scenario, time.Now().UTC().Format(time.RFC3339), true,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Get returns info about a run identified by 'uuid' on success,
// ErrNotFound when the run identified by 'uuid' does not exist,
// error otherwise.
func Get(ctx context.Context, db *sql.DB, uuid string) (RunRow, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return RunRow{}, err
	}
	defer func(ctx context.Context, uuid string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
		}
	}(ctx, uuid)

	var runRow RunRow
	row := tx.QueryRowContext(ctx,
		`SELECT * FROM runs WHERE uuid=?`, uuid,
	)

	err = row.Scan(
		&runRow.ID,
		&runRow.UUID,
		&runRow.Scenario,
		&runRow.StartedAt,
		&runRow.InProgress,
		&runRow.Success,
		&runRow.FailureReason,
		&runRow.FinishedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return RunRow{}, ErrNotFound
	case err != nil:
		return RunRow{}, fmt.Errorf("executing sql query failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return RunRow{}, fmt.Errorf("committing transaction failed: %w", err)
	}

	return runRow, nil
}

// FinishOK on success stores information that the run, identified by 'uuid',
// has finished successfully,
// if the run has already finished, ErrAlreadyFinished is returned,
// error otherwise.
func FinishOK(ctx context.Context, db *sql.DB, uuid string) error {
	return finish(ctx, db, uuid, true, nil)
}

// FinishErr stores information that the run, identified by 'uuid', has failed
// and stores the failure reason with it,
// error otherwise.
func FinishErr(ctx context.Context, db *sql.DB, uuid, reason string) error {
	return finish(ctx, db, uuid, false, &reason)
}

func finish(ctx context.Context, db *sql.DB, uuid string, success bool, reason *string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context, uuid string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
		}
	}(ctx, uuid)

	var runRow RunRow
	row := tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	)
	err = row.Scan(&runRow.InProgress)
	switch {
	case err == nil && !runRow.InProgress:
		return ErrAlreadyFinished
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs
		 SET
			in_progress = false,
			success = ?,
			failure_reason = ?,
			finished_at = ?
		WHERE uuid = ?;
		`, success, reason, time.Now().UTC().Format(time.RFC3339), uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// RecordSnapshot appends the snapshot of one service to the run identified
// by 'uuid'. The run must exist, otherwise ErrNotFound is returned.
func RecordSnapshot(ctx context.Context, db *sql.DB, uuid string, snap service.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot failed: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context, uuid string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
		}
	}(ctx, uuid)

	var runRow RunRow
	row := tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	)
	err = row.Scan(&runRow.InProgress)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (run_uuid, service_id, snapshot) VALUES (?,?,?);`,
		uuid, snap.ServiceID, string(doc),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Snapshots returns every snapshot recorded for the run identified by
// 'uuid' in insertion order. A run without snapshots yields an empty
// slice.
func Snapshots(ctx context.Context, db *sql.DB, uuid string) ([]service.Snapshot, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT snapshot FROM snapshots WHERE run_uuid=? ORDER BY id`, uuid,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var snaps []service.Snapshot
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("executing sql query failed: %w", err)
		}
		var snap service.Snapshot
		if err := json.Unmarshal([]byte(doc), &snap); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot failed: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql rows failed: %w", err)
	}
	return snaps, nil
}

// Runs lists every recorded run in insertion order.
func Runs(ctx context.Context, db *sql.DB) ([]RunRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT * FROM runs ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		err := rows.Scan(
			&r.ID,
			&r.UUID,
			&r.Scenario,
			&r.StartedAt,
			&r.InProgress,
			&r.Success,
			&r.FailureReason,
			&r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("executing sql query failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql rows failed: %w", err)
	}
	return out, nil
}

// Delete removes the run identified by 'uuid' together with its
// snapshots. ErrNotFound is returned when no such run exists.
func Delete(ctx context.Context, db *sql.DB, uuid string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context, uuid string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
		}
	}(ctx, uuid)

	result, err := tx.ExecContext(ctx,
		`DELETE FROM runs WHERE uuid=?`, uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}

	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE run_uuid=?`, uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}

	return nil
}
