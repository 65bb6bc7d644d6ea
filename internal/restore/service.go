package restore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Chicoo/aspire-restore-db-backup/internal/fileshare"
	"github.com/Chicoo/aspire-restore-db-backup/internal/retry"
	"github.com/Chicoo/aspire-restore-db-backup/internal/sqlserver"
)

// State is the orchestration phase. Done and Failed are terminal.
type State int

const (
	StateProbing State = iota
	StateDropping
	StateRestoring
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateDropping:
		return "dropping"
	case StateRestoring:
		return "restoring"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Database is the statement surface the orchestrator drives. Implemented by
// *sqlserver.Client; tests substitute fakes.
type Database interface {
	Classify(ctx context.Context, name sqlserver.Identifier) (sqlserver.Classification, error)
	Drop(ctx context.Context, name sqlserver.Identifier) error
	BackupFileList(ctx context.Context, backupPath string) ([]sqlserver.ManifestEntry, error)
	Restore(ctx context.Context, name sqlserver.Identifier, backupPath string, entries []sqlserver.ManifestEntry) error
	SetTrustworthy(ctx context.Context, name sqlserver.Identifier) error
	ReassignOwner(ctx context.Context, name sqlserver.Identifier) error
}

// Fetcher materializes the backup artifact locally.
type Fetcher interface {
	EnsureLocal(ctx context.Context, src fileshare.Source, destPath string) (fileshare.CacheEntry, error)
}

// Options controls one orchestration run. Target and source are resolved once
// and immutable for the lifetime of the run.
type Options struct {
	Database  sqlserver.Identifier
	Source    fileshare.Source
	LocalPath string

	// WarmupDelay is observed before the first probe so the engine can finish
	// its own startup after reporting ready.
	WarmupDelay time.Duration
	// DropAttempts/DropDelay bound the retry loop when a drop hits lock
	// contention. No growth, no jitter.
	DropAttempts int
	DropDelay    time.Duration
}

// Run drives one orchestration: fetch, probe, conditional drop, restore,
// finalize. A populated target is never overwritten; that is the idempotence
// contract at the database level. The returned state is terminal.
func Run(ctx context.Context, db Database, f Fetcher, opt Options) (State, error) {
	name := opt.Database
	if opt.DropAttempts <= 0 {
		opt.DropAttempts = 3
	}
	if opt.DropDelay <= 0 {
		opt.DropDelay = 2 * time.Second
	}

	if opt.WarmupDelay > 0 {
		log.Debug().
			Str("action", "restore_orchestration").
			Str("database", name.String()).
			Dur("warmup_ms", opt.WarmupDelay).
			Msg("waiting for engine warm-up")
		timer := time.NewTimer(opt.WarmupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StateFailed, ctx.Err()
		case <-timer.C:
		}
	}

	entry, err := f.EnsureLocal(ctx, opt.Source, opt.LocalPath)
	if err != nil {
		return fail(name, StateProbing, fmt.Errorf("ensure backup artifact: %w", err))
	}
	if !entry.Exists {
		return fail(name, StateProbing, fmt.Errorf("backup artifact unavailable at %s", opt.LocalPath))
	}

	state := StateProbing
	for {
		switch state {
		case StateProbing:
			cls, err := db.Classify(ctx, name)
			if err != nil {
				return fail(name, state, err)
			}
			log.Info().
				Str("action", "restore_orchestration").
				Str("database", name.String()).
				Str("classified", cls.State.String()).
				Msg("probe complete")

			switch cls.State {
			case sqlserver.StatePresentPopulated:
				log.Info().
					Str("action", "restore_orchestration").
					Str("database", name.String()).
					Int("tables", cls.Tables).
					Msg("database already populated, skipping restore")
				state = StateDone
			case sqlserver.StatePresentEmpty:
				state = StateDropping
			default: // absent: nothing to drop
				state = StateRestoring
			}

		case StateDropping:
			attempt := 0
			err := retry.Do(ctx,
				retry.Fixed(opt.DropAttempts, opt.DropDelay),
				func(err error) bool { return errors.Is(err, sqlserver.ErrDatabaseInUse) },
				func(ctx context.Context) error {
					attempt++
					log.Debug().
						Str("action", "db_drop").
						Str("database", name.String()).
						Int("attempt", attempt).
						Msg("starting attempt")
					return db.Drop(ctx, name)
				})
			if err != nil {
				return fail(name, state, fmt.Errorf("drop after %d attempt(s): %w", attempt, err))
			}
			log.Info().
				Str("action", "db_drop").
				Str("database", name.String()).
				Int("attempts", attempt).
				Msg("drop OK")
			state = StateRestoring

		case StateRestoring:
			entries, err := db.BackupFileList(ctx, entry.LocalPath)
			if err != nil {
				return fail(name, state, err)
			}
			if err := db.Restore(ctx, name, entry.LocalPath, entries); err != nil {
				// A half-restored database is not retried automatically; the
				// next run re-probes and decides fresh.
				return fail(name, state, err)
			}
			state = StateFinalizing

		case StateFinalizing:
			if err := db.SetTrustworthy(ctx, name); err != nil {
				log.Warn().
					Err(err).
					Str("action", "db_finalize").
					Str("database", name.String()).
					Msg("set trustworthy failed")
			}
			if err := db.ReassignOwner(ctx, name); err != nil {
				// Surfaced as a warning rather than swallowed; the restore
				// itself is complete (see DESIGN.md).
				log.Warn().
					Err(err).
					Str("action", "db_finalize").
					Str("database", name.String()).
					Msg("ownership reassignment failed")
			}
			state = StateDone

		case StateDone:
			return StateDone, nil
		}
	}
}

func fail(name sqlserver.Identifier, at State, err error) (State, error) {
	log.Error().
		Err(err).
		Str("action", "restore_orchestration").
		Str("database", name.String()).
		Str("state", at.String()).
		Msg("orchestration failed")
	return StateFailed, err
}
