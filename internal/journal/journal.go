// Package journal persists multipart session lifecycle in SQLite so sessions
// orphaned by a crash can be found and aborted on the next run.
package journal

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is a SQLite-backed xfertypes.Journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ xfertypes.Journal = (*Journal)(nil)

// Open opens (creating if needed) the journal database at path and applies
// pending schema migrations.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load journal migrations: %w", err)
	}

	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("init journal migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("init journal migrations: %w", err)
	}

	// m.Close would close db as well.
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a newly opened session.
func (j *Journal) Record(ctx context.Context, rec xfertypes.SessionRecord) error {
	now := j.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.State == "" {
		rec.State = xfertypes.SessionOpen
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (
			transfer_id, source_endpoint, source_object,
			destination_endpoint, destination_object, upload_id,
			size, part_size, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransferID, rec.Source.Endpoint, rec.Source.Object,
		rec.Destination.Endpoint, rec.Destination.Object, rec.UploadID,
		rec.Size, rec.PartSize, string(rec.State),
		rec.CreatedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", rec.TransferID, err)
	}
	return nil
}

// Resolve marks a session as committed or aborted.
func (j *Journal) Resolve(ctx context.Context, transferID string, state xfertypes.SessionState) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE transfer_id = ?`,
		string(state), j.now().UnixMilli(), transferID,
	)
	if err != nil {
		return fmt.Errorf("resolve session %s: %w", transferID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve session %s: %w", transferID, err)
	}
	if n == 0 {
		return errors.NewError("resolve", errors.ErrSessionNotFound).
			WithMessage(fmt.Sprintf("transfer %s is not journaled", transferID))
	}
	return nil
}

// Pending lists sessions still recorded as open, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]xfertypes.SessionRecord, error) {
	return j.query(ctx, `WHERE state = 'open' ORDER BY created_at ASC, transfer_id ASC`)
}

// List returns every recorded session, newest first.
func (j *Journal) List(ctx context.Context) ([]xfertypes.SessionRecord, error) {
	return j.query(ctx, `ORDER BY created_at DESC, transfer_id ASC`)
}

func (j *Journal) query(ctx context.Context, clause string) ([]xfertypes.SessionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT transfer_id, source_endpoint, source_object,
			destination_endpoint, destination_object, upload_id,
			size, part_size, state, created_at, updated_at
		FROM sessions `+clause)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []xfertypes.SessionRecord
	for rows.Next() {
		var (
			rec              xfertypes.SessionRecord
			state            string
			created, updated int64
		)
		if err := rows.Scan(
			&rec.TransferID, &rec.Source.Endpoint, &rec.Source.Object,
			&rec.Destination.Endpoint, &rec.Destination.Object, &rec.UploadID,
			&rec.Size, &rec.PartSize, &state, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.State = xfertypes.SessionState(state)
		rec.CreatedAt = time.UnixMilli(created)
		rec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
