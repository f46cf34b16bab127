package source

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

// OpenPostgres opens a PostGIS connection and checks that it is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fault.RemoteError("open database", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fault.RemoteError("connect database", err)
	}
	return db, nil
}
