package sqlserver

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/microsoft/go-mssqldb"
)

// Config holds connection settings for the engine plus the paths and timeouts
// the restore statements need.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	// DataDir is the engine-side directory restored physical files are moved
	// into (e.g. /var/opt/mssql/data).
	DataDir string
	// RestoreTimeout bounds the RESTORE DATABASE statement. Backups vary a
	// lot in size, so this is deliberately generous.
	RestoreTimeout time.Duration
}

// Client issues catalog and restore statements over a single connection to
// the administrative catalog (master), plus an on-demand connection scoped to
// the target database for ownership reassignment.
type Client struct {
	db  *sql.DB
	cfg Config
}

func Open(cfg Config) (*Client, error) {
	db, err := sql.Open("sqlserver", connString(cfg, "master"))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	return &Client{db: db, cfg: cfg}, nil
}

func (c *Client) Close() error { return c.db.Close() }

func connString(cfg Config, database string) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", database)
	q.Set("app name", "restore-operator")
	u.RawQuery = q.Encode()
	return u.String()
}
