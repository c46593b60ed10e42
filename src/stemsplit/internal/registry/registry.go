package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

var _ run.Store = &Registry{}

// Registry persists runs in a local SQLite database so run history survives
// the process and concurrent invocations see each other's status.
type Registry struct {
	db   *sql.DB
	path string
}

func Open(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm); err != nil {
		return nil, cerr.Field("db_path", dbPath).Wrap(err).Error("Failed to create registry directory")
	}

	// DSN pragmas apply to every pooled connection, and immediate
	// transactions take the write lock up front so concurrent updates
	// queue on busy_timeout instead of failing a lock upgrade.
	dsn := dbPath + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.Field("db_path", dbPath).Wrap(err).Error("Failed to open registry database")
	}

	registry := &Registry{db: db, path: dbPath}
	if err := registry.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return registry, nil
}

func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Registry) initSchema(ctx context.Context) error {
	var tableExists int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to check for schema_version table")
	}

	if tableExists == 0 {
		if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
			return cerr.Wrap(err).Error("Failed to create registry schema")
		}
		return nil
	}

	var version int
	if err := r.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return cerr.Wrap(err).Error("Failed to read schema version")
	}

	if version != schemaVersion {
		return cerr.Field("db_version", version).
			Field("expected_version", schemaVersion).
			Error("Registry schema version mismatch, delete the registry database to reset")
	}

	return nil
}

func (r *Registry) CreateRun(ctx context.Context, rn run.Run) error {
	stemPathsJSON, err := marshalStemPaths(rn.StemPaths)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, input, source_kind, status, output_dir,
            stem_paths_json, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rn.ID,
		rn.Input,
		rn.SourceKind,
		string(rn.Status),
		rn.OutputDir,
		stemPathsJSON,
		rn.ErrorMessage,
		rn.CreatedAt.Format(time.RFC3339Nano),
		rn.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return cerr.Field("run_id", rn.ID).Wrap(err).Error("Failed to insert run")
	}

	return nil
}

func (r *Registry) GetRun(ctx context.Context, id string) (run.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, input, source_kind, status, output_dir,
                stem_paths_json, error_message, created_at, updated_at
           FROM runs WHERE id = ?`, id)

	rn, err := scanRun(row)
	if err != nil {
		return run.Run{}, cerr.Field("run_id", id).Wrap(err).Error("Failed to get run")
	}

	return rn, nil
}

// UpdateRun applies updater to the stored run and writes the result back.
// The read and write happen in one transaction so concurrent updaters
// cannot overwrite each other's changes.
func (r *Registry) UpdateRun(ctx context.Context, id string, updater run.Updater) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Field("run_id", id).Wrap(err).Error("Failed to begin run update transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, input, source_kind, status, output_dir,
                stem_paths_json, error_message, created_at, updated_at
           FROM runs WHERE id = ?`, id)

	rn, err := scanRun(row)
	if err != nil {
		return cerr.Field("run_id", id).Wrap(err).Error("Failed to load run for update")
	}

	updated, err := updater(rn)
	if err != nil {
		return cerr.Field("run_id", id).Wrap(err).Error("Run update function failed")
	}

	updated.UpdatedAt = time.Now().UTC()

	stemPathsJSON, err := marshalStemPaths(updated.StemPaths)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET
            status = ?, output_dir = ?, stem_paths_json = ?,
            error_message = ?, updated_at = ?
          WHERE id = ?`,
		string(updated.Status),
		updated.OutputDir,
		stemPathsJSON,
		updated.ErrorMessage,
		updated.UpdatedAt.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return cerr.Field("run_id", id).Wrap(err).Error("Failed to update run")
	}

	if err := tx.Commit(); err != nil {
		return cerr.Field("run_id", id).Wrap(err).Error("Failed to commit run update")
	}

	return nil
}

func (r *Registry) ListRecent(ctx context.Context, limit int) ([]run.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, input, source_kind, status, output_dir,
                stem_paths_json, error_message, created_at, updated_at
           FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to list runs")
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, cerr.Wrap(err).Error("Failed to scan run row")
		}
		runs = append(runs, rn)
	}

	if err := rows.Err(); err != nil {
		return nil, cerr.Wrap(err).Error("Failed while iterating run rows")
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (run.Run, error) {
	var (
		rn            run.Run
		status        string
		stemPathsJSON string
		createdAt     string
		updatedAt     string
	)

	err := row.Scan(
		&rn.ID,
		&rn.Input,
		&rn.SourceKind,
		&status,
		&rn.OutputDir,
		&stemPathsJSON,
		&rn.ErrorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return run.Run{}, err
	}

	rn.Status = run.Status(status)

	if err := json.Unmarshal([]byte(stemPathsJSON), &rn.StemPaths); err != nil {
		return run.Run{}, cerr.Field("stem_paths_json", stemPathsJSON).
			Wrap(err).Error("Failed to unmarshal stem paths")
	}

	if rn.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return run.Run{}, cerr.Field("created_at", createdAt).Wrap(err).Error("Failed to parse created_at")
	}

	if rn.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return run.Run{}, cerr.Field("updated_at", updatedAt).Wrap(err).Error("Failed to parse updated_at")
	}

	return rn, nil
}

func marshalStemPaths(stemPaths map[string]string) (string, error) {
	if stemPaths == nil {
		stemPaths = map[string]string{}
	}

	contents, err := json.Marshal(stemPaths)
	if err != nil {
		return "", cerr.Wrap(err).Error("Failed to marshal stem paths")
	}

	return string(contents), nil
}
