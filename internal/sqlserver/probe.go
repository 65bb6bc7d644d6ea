package sqlserver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DatabaseState classifies a target database.
type DatabaseState int

const (
	StateAbsent DatabaseState = iota
	StatePresentEmpty
	StatePresentPopulated
)

func (s DatabaseState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresentEmpty:
		return "present-empty"
	case StatePresentPopulated:
		return "present-populated"
	default:
		return "unknown"
	}
}

// Classification is the probe result. Tables is only meaningful for
// present-populated.
type Classification struct {
	State  DatabaseState
	Tables int
}

// Classify inspects the engine catalog and classifies the target database.
// For a present database it first attempts a forced single-user reclaim,
// terminating every other session against the target; callers must only run
// this against a database the orchestration exclusively owns.
func (c *Client) Classify(ctx context.Context, name Identifier) (Classification, error) {
	var registered int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.databases WHERE name = @name",
		sql.Named("name", name.String()),
	).Scan(&registered)
	if err != nil {
		return Classification{}, fmt.Errorf("database existence check: %w", err)
	}
	if registered == 0 {
		return Classification{State: StateAbsent}, nil
	}

	// Best-effort: a failed reclaim is only a warning, the table check below
	// may still get through.
	if err := c.reclaim(ctx, name); err != nil {
		log.Warn().
			Err(err).
			Str("action", "db_probe").
			Str("database", name.String()).
			Msg("single-user reclaim failed")
	}

	var tables int
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s.sys.tables WHERE is_ms_shipped = 0",
		name.Bracketed())
	if err := c.db.QueryRowContext(ctx, query).Scan(&tables); err != nil {
		return Classification{}, fmt.Errorf("user table count: %w", err)
	}
	if tables == 0 {
		return Classification{State: StatePresentEmpty}, nil
	}
	return Classification{State: StatePresentPopulated, Tables: tables}, nil
}

// reclaim bounces the database through single-user mode with immediate
// rollback of in-flight transactions, killing every other session, then back
// to multi-user.
func (c *Client) reclaim(ctx context.Context, name Identifier) error {
	stmt := fmt.Sprintf(
		"ALTER DATABASE %[1]s SET SINGLE_USER WITH ROLLBACK IMMEDIATE; ALTER DATABASE %[1]s SET MULTI_USER;",
		name.Bracketed())
	_, err := c.db.ExecContext(ctx, stmt)
	return err
}
