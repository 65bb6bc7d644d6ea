package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Chicoo/aspire-restore-db-backup/internal/config"
	"github.com/Chicoo/aspire-restore-db-backup/internal/fileshare"
	"github.com/Chicoo/aspire-restore-db-backup/internal/logx"
	"github.com/Chicoo/aspire-restore-db-backup/internal/restore"
	"github.com/Chicoo/aspire-restore-db-backup/internal/sqlserver"
	"github.com/Chicoo/aspire-restore-db-backup/internal/version"
)

// Test seams — overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig func() (config.Config, error)                               = config.Load
	runRestore func(context.Context, config.Config) (restore.State, error) = runOrchestration
	exit       func(int)                                                   = os.Exit
)

const usage = `
Usage:
  operator run
  operator version | --version | -v
  operator help    | --help    | -h

Notes:
  - Configuration comes from the environment (a .env file is honored):
      DATABASE_NAME, BACKUP_FILE_NAME, BACKUP_SOURCE_URL, STORAGE_SIGNING_KEY
      SQLSERVER_HOST, SQLSERVER_PORT, SQLSERVER_USER, SQLSERVER_PASSWORD
      BACKUP_CACHE_DIR, SQL_DATA_DIR
  - "run" restores the configured database once the engine is reachable;
    an already populated database is left untouched.
`

// main wires CLI -> config -> fileshare/sqlserver -> restore orchestration.
// Exit codes: 0 success, 1 runtime error, 2 usage error.
func main() {
	_ = godotenv.Load() // best-effort
	logx.InitFromEnv()

	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Print(usage)
		exit(2)
	}
	action := strings.ToLower(args[0])

	if action == "version" || action == "--version" || action == "-v" {
		fmt.Printf("restore-db-operator %s\n", version.Info())
		exit(0)
	}
	if action == "help" || action == "--help" || action == "-h" {
		fmt.Print(usage)
		exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("config error")
		exit(1)
	}

	ctx := withSignals(context.Background())

	switch action {
	case "run":
		start := time.Now()
		state, err := runRestore(ctx, cfg)
		if err != nil {
			log.Error().
				Err(err).
				Str("action", "restore_orchestration").
				Str("database", cfg.DatabaseName).
				Str("state", state.String()).
				Msg("restore run failed")
			exit(1)
		}
		log.Info().
			Str("action", "restore_orchestration").
			Str("database", cfg.DatabaseName).
			Str("state", state.String()).
			Dur("elapsed_ms", time.Since(start)).
			Msg("database ready")

	default:
		fmt.Print(usage)
		exit(2)
	}
}

// runOrchestration resolves the target and source from config and drives one
// restore run against the live engine.
func runOrchestration(ctx context.Context, cfg config.Config) (restore.State, error) {
	name, err := sqlserver.NewIdentifier(cfg.DatabaseName)
	if err != nil {
		return restore.StateFailed, err
	}

	src, err := fileshare.ParseSource(
		strings.TrimRight(cfg.SourceURL, "/")+"/"+cfg.BackupFileName,
		cfg.SigningKey)
	if err != nil {
		return restore.StateFailed, err
	}

	client, err := sqlserver.Open(sqlserver.Config{
		Host:           cfg.SQL.Host,
		Port:           cfg.SQL.Port,
		User:           cfg.SQL.User,
		Password:       cfg.SQL.Password,
		DataDir:        cfg.DataDir,
		RestoreTimeout: cfg.RestoreTimeout,
	})
	if err != nil {
		return restore.StateFailed, err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close sqlserver connection")
		}
	}()

	return restore.Run(ctx, client, fileshare.NewFetcher(), restore.Options{
		Database:     name,
		Source:       src,
		LocalPath:    filepath.Join(cfg.CacheDir, cfg.BackupFileName),
		WarmupDelay:  cfg.WarmupDelay,
		DropAttempts: cfg.DropAttempts,
		DropDelay:    cfg.DropDelay,
	})
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
