package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"financial-reporter/internal/shared/config"
	"financial-reporter/internal/shared/telemetry"
)

// Profile names a pool sizing for one kind of process.
type Profile string

const (
	ProfileServer  Profile = "server"
	ProfileLambda  Profile = "lambda"
	ProfileMigrate Profile = "migrate"
)

// Each Lambda sandbox serves one request at a time, so it keeps a tiny pool
// to stay under the Postgres connection limit when many sandboxes run.
var profiles = map[Profile]config.DBPool{
	ProfileServer: {
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     5 * time.Second,
	},
	ProfileLambda: {
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
		PingTimeout:     3 * time.Second,
	},
	ProfileMigrate: {
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
	},
}

var (
	sqlOpen = sql.Open

	lambdaMu sync.Mutex
	lambdaDB *sql.DB
)

// RuntimeProfile is ProfileLambda inside AWS Lambda and ProfileServer elsewhere.
func RuntimeProfile() Profile {
	if strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != "" {
		return ProfileLambda
	}
	return ProfileServer
}

// PoolFor returns the profile's pool with the non-zero override fields applied.
func PoolFor(p Profile, overrides config.DBPool) config.DBPool {
	pool, ok := profiles[p]
	if !ok {
		pool = profiles[ProfileServer]
	}
	if overrides.MaxOpenConns > 0 {
		pool.MaxOpenConns = overrides.MaxOpenConns
	}
	if overrides.MaxIdleConns > 0 {
		pool.MaxIdleConns = overrides.MaxIdleConns
	}
	if overrides.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = overrides.ConnMaxLifetime
	}
	if overrides.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = overrides.ConnMaxIdleTime
	}
	if overrides.PingTimeout > 0 {
		pool.PingTimeout = overrides.PingTimeout
	}
	return pool
}

// Open connects with the pool of the current runtime. Inside Lambda every
// caller gets the same handle, kept open across invocations; a failed
// connect is retried on the next call.
func Open(ctx context.Context, databaseURL string, overrides config.DBPool) (*sql.DB, error) {
	profile := RuntimeProfile()
	if profile != ProfileLambda {
		return Connect(ctx, databaseURL, PoolFor(profile, overrides))
	}

	lambdaMu.Lock()
	defer lambdaMu.Unlock()
	if lambdaDB != nil {
		return lambdaDB, nil
	}
	conn, err := Connect(ctx, databaseURL, PoolFor(profile, overrides))
	if err != nil {
		return nil, err
	}
	lambdaDB = conn
	return conn, nil
}

// Shared reports whether conn is the Lambda handle that outlives the app.
func Shared(conn *sql.DB) bool {
	lambdaMu.Lock()
	defer lambdaMu.Unlock()
	return conn != nil && conn == lambdaDB
}

// Connect opens a pgx-backed *sql.DB sized by pool and pings it.
func Connect(ctx context.Context, databaseURL string, pool config.DBPool) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	conn, err := sqlOpen("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(pool.MaxIdleConns)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingTimeout := pool.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	telemetry.Info("db.connected", map[string]any{
		"max_open": pool.MaxOpenConns,
		"max_idle": pool.MaxIdleConns,
		"lifetime": pool.ConnMaxLifetime.String(),
	})
	return conn, nil
}
