// Package migrations embeds the goose SQL migrations and runs them against
// the configured database.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var migrationFiles embed.FS

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	return db, nil
}

func provider(db *sql.DB) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db, migrationFiles)
}

// Up applies all pending migrations.
func Up(ctx context.Context, dsn string) error {
	db, err := open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := provider(db)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, dsn string) error {
	db, err := open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := provider(db)
	if err != nil {
		return err
	}
	_, err = p.Down(ctx)
	return err
}

// Status returns a printable summary of migration state.
func Status(ctx context.Context, dsn string) ([]string, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	p, err := provider(db)
	if err != nil {
		return nil, err
	}
	results, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(results))
	for _, res := range results {
		state := "pending"
		if res.State == goose.StateApplied {
			state = "applied"
		}
		out = append(out, fmt.Sprintf("%s %s", res.Source.Path, state))
	}
	return out, nil
}
