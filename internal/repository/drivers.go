package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/harrier/internal/domain"
)

const connectTimeout = 10 * time.Second

// driver describes one database/sql backend the store can run on.
type driver struct {
	sqlName string
	dsn     func(cfg domain.RepositoryConfig) (string, error)
}

var drivers = map[string]driver{
	"sqlite":   {sqlName: "sqlite", dsn: sqliteDSN},
	"postgres": {sqlName: "postgres", dsn: postgresDSN},
}

// open connects to the configured backend and verifies the connection.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	d, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// sqliteDSN points modernc.org/sqlite at a file, creating its directory.
// WAL with a busy timeout lets the rescoring worker write while the API reads.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./harrier.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	for _, pragma := range []string{
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"busy_timeout(5000)",
	} {
		q.Add("_pragma", pragma)
	}
	return "file:" + path + "?" + q.Encode(), nil
}

// postgresDSN renders a lib/pq connection URL. Credentials are escaped.
func postgresDSN(cfg domain.RepositoryConfig) (string, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("%w: postgres port %d", ErrInvalidInput, port)
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "harrier"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + dbname,
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	u.RawQuery = url.Values{
		"sslmode":          {sslmode},
		"application_name": {"harrier"},
		"connect_timeout":  {strconv.Itoa(int(connectTimeout.Seconds()))},
	}.Encode()
	return u.String(), nil
}
