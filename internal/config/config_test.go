package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_NAME", "AdventureWorks")
	t.Setenv("BACKUP_FILE_NAME", "AdventureWorks.bak")
	t.Setenv("BACKUP_SOURCE_URL", "https://acct.file.core.windows.net/backups")
	t.Setenv("SQLSERVER_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQL.Host != "localhost" || cfg.SQL.Port != 1433 || cfg.SQL.User != "sa" {
		t.Fatalf("sql defaults: %+v", cfg.SQL)
	}
	if cfg.CacheDir != defaultCacheDir || cfg.DataDir != defaultDataDir {
		t.Fatalf("path defaults: cache=%q data=%q", cfg.CacheDir, cfg.DataDir)
	}
	if cfg.WarmupDelay != 5*time.Second {
		t.Fatalf("warmup default: %v", cfg.WarmupDelay)
	}
	if cfg.DropAttempts != 3 || cfg.DropDelay != 2*time.Second {
		t.Fatalf("drop retry defaults: attempts=%d delay=%v", cfg.DropAttempts, cfg.DropDelay)
	}
	if cfg.RestoreTimeout != 5*time.Minute {
		t.Fatalf("restore timeout default: %v", cfg.RestoreTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SQLSERVER_HOST", "db.internal")
	t.Setenv("SQLSERVER_PORT", "14330")
	t.Setenv("STORAGE_SIGNING_KEY", " base64key ")
	t.Setenv("WARMUP_DELAY", "250ms")
	t.Setenv("DROP_RETRY_ATTEMPTS", "5")
	t.Setenv("DROP_RETRY_DELAY", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQL.Host != "db.internal" || cfg.SQL.Port != 14330 {
		t.Fatalf("sql overrides: %+v", cfg.SQL)
	}
	if cfg.SigningKey != "base64key" {
		t.Fatalf("signing key should be trimmed: %q", cfg.SigningKey)
	}
	if cfg.WarmupDelay != 250*time.Millisecond || cfg.DropAttempts != 5 || cfg.DropDelay != time.Second {
		t.Fatalf("timing overrides: warmup=%v attempts=%d delay=%v",
			cfg.WarmupDelay, cfg.DropAttempts, cfg.DropDelay)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SQLSERVER_PORT", "not-a-port")
	t.Setenv("DROP_RETRY_ATTEMPTS", "-2")
	t.Setenv("WARMUP_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQL.Port != 1433 || cfg.DropAttempts != 3 || cfg.WarmupDelay != 5*time.Second {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	cases := []string{"DATABASE_NAME", "BACKUP_FILE_NAME", "BACKUP_SOURCE_URL", "SQLSERVER_PASSWORD"}
	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), missing) {
				t.Fatalf("want error naming %s, got %v", missing, err)
			}
		})
	}
}
