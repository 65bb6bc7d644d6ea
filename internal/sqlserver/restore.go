package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog/log"
)

// StreamKind distinguishes the data and log streams embedded in a backup
// artifact.
type StreamKind int

const (
	StreamData StreamKind = iota
	StreamLog
)

// ManifestEntry is one physical file encoded inside the backup artifact.
type ManifestEntry struct {
	LogicalName string
	Kind        StreamKind
}

// ErrDatabaseInUse marks the lock-contention condition: another session
// grabbed the database between reclaim and drop. Retryable.
var ErrDatabaseInUse = errors.New("database is in use")

// The engine raises 3702/3703 when DROP or ALTER hits an in-use database.
func isLockContention(err error) bool {
	var se mssql.Error
	if errors.As(err, &se) {
		return se.Number == 3702 || se.Number == 3703
	}
	return false
}

// Drop forces the target to single-user mode and drops it so a restore can
// recreate it cleanly. Lock contention surfaces as ErrDatabaseInUse.
func (c *Client) Drop(ctx context.Context, name Identifier) error {
	stmt := fmt.Sprintf(
		"ALTER DATABASE %[1]s SET SINGLE_USER WITH ROLLBACK IMMEDIATE; DROP DATABASE %[1]s;",
		name.Bracketed())
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		if isLockContention(err) {
			return fmt.Errorf("%w: %v", ErrDatabaseInUse, err)
		}
		return fmt.Errorf("drop database: %w", err)
	}
	return nil
}

// BackupFileList enumerates the physical files embedded in the backup
// artifact. This queries the file only; no target database needs to exist.
func (c *Client) BackupFileList(ctx context.Context, backupPath string) ([]ManifestEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		"RESTORE FILELISTONLY FROM DISK = @path",
		sql.Named("path", backupPath))
	if err != nil {
		return nil, fmt.Errorf("backup file list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// FILELISTONLY returns a wide, version-dependent column set; pick the two
	// columns we need by name and sink the rest.
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("backup file list: %w", err)
	}
	logicalIdx, typeIdx := -1, -1
	for i, col := range cols {
		switch col {
		case "LogicalName":
			logicalIdx = i
		case "Type":
			typeIdx = i
		}
	}
	if logicalIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("backup file list: unexpected columns %v", cols)
	}

	var entries []ManifestEntry
	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = new(sql.RawBytes)
		}
		var logical, kind sql.NullString
		vals[logicalIdx] = &logical
		vals[typeIdx] = &kind
		if err := rows.Scan(vals...); err != nil {
			return nil, fmt.Errorf("backup file list: %w", err)
		}
		e := ManifestEntry{LogicalName: logical.String}
		if strings.EqualFold(kind.String, "L") {
			e.Kind = StreamLog
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backup file list: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("backup file list: no entries in %s", backupPath)
	}
	return entries, nil
}

// PhysicalFileName computes the destination file name for the i-th manifest
// entry: {db}_{i}.mdf for data streams, {db}_{i}_log.ldf for log streams.
func PhysicalFileName(name Identifier, i int, kind StreamKind) string {
	if kind == StreamLog {
		return fmt.Sprintf("%s_%d_log.ldf", name, i)
	}
	return fmt.Sprintf("%s_%d.mdf", name, i)
}

// RestoreStatement builds the single restore batch: replace existing files,
// relocate every logical file under dataDir, full recovery. Keeping all move
// clauses in one statement preserves the engine-level atomicity of RESTORE.
func RestoreStatement(name Identifier, backupPath, dataDir string, entries []ManifestEntry) string {
	with := make([]string, 0, len(entries)+2)
	with = append(with, "REPLACE", "RECOVERY")
	for i, e := range entries {
		dest := path.Join(dataDir, PhysicalFileName(name, i, e.Kind))
		with = append(with, fmt.Sprintf("MOVE N'%s' TO N'%s'", escape(e.LogicalName), escape(dest)))
	}
	return fmt.Sprintf("RESTORE DATABASE %s FROM DISK = N'%s' WITH %s",
		name.Bracketed(), escape(backupPath), strings.Join(with, ", "))
}

// escape doubles single quotes inside an N'...' literal.
func escape(s string) string { return strings.ReplaceAll(s, "'", "''") }

// Restore executes the restore batch under an extended timeout.
func (c *Client) Restore(ctx context.Context, name Identifier, backupPath string, entries []ManifestEntry) error {
	timeout := c.cfg.RestoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	log.Info().
		Str("action", "db_restore").
		Str("database", name.String()).
		Str("backup", backupPath).
		Int("files", len(entries)).
		Msg("starting restore statement")
	if _, err := c.db.ExecContext(ctx, RestoreStatement(name, backupPath, c.cfg.DataDir, entries)); err != nil {
		return fmt.Errorf("restore database: %w", err)
	}
	log.Info().
		Str("action", "db_restore").
		Str("database", name.String()).
		Dur("elapsed_ms", time.Since(start)).
		Msg("restore statement OK")
	return nil
}

// SetTrustworthy marks the restored database trusted for cross-database
// ownership chaining.
func (c *Client) SetTrustworthy(ctx context.Context, name Identifier) error {
	stmt := fmt.Sprintf("ALTER DATABASE %s SET TRUSTWORTHY ON", name.Bracketed())
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("set trustworthy: %w", err)
	}
	return nil
}

// ReassignOwner hands database ownership to the administrative principal.
// sp_changedbowner acts on the current database only, so this runs on a
// short-lived connection scoped to the target.
func (c *Client) ReassignOwner(ctx context.Context, name Identifier) error {
	db, err := sql.Open("sqlserver", connString(c.cfg, name.String()))
	if err != nil {
		return fmt.Errorf("open target connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "EXEC sp_changedbowner 'sa'"); err != nil {
		return fmt.Errorf("reassign owner: %w", err)
	}
	return nil
}
