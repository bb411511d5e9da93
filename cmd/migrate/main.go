package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/classroom/internal/pkg/config"
	"github.com/samirrijal/classroom/migrations"
)

const versionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}
	cmd := os.Args[1]

	cfg, err := config.Load("classroom-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var steps []migrations.Migration
	switch cmd {
	case "up", "status":
		steps, err = migrations.Up()
	case "down":
		steps, err = migrations.Down()
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, versionTable); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		log.Fatalf("read applied versions: %v", err)
	}

	n := 0
	for _, m := range steps {
		done := applied[m.Version()]
		switch {
		case cmd == "status":
			state := "pending"
			if done {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, m.Version())
			continue
		case cmd == "up" && done, cmd == "down" && !done:
			continue
		}

		if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			if cmd == "up" {
				_, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version())
			} else {
				_, err = tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version())
			}
			return err
		}); err != nil {
			log.Fatalf("exec %s: %v", m.Name, err)
		}
		fmt.Printf("OK  %s\n", m.Name)
		n++
	}
	if cmd != "status" {
		log.Printf("%d migrations applied (%s)", n, cmd)
	}
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}
