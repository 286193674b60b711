package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/storedetect/internal/adapters/memory"
	"github.com/samirrijal/storedetect/internal/adapters/postgres"
	"github.com/samirrijal/storedetect/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|seed <stores.json>>")
	}

	cfg, err := config.Load("storedetect-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, pool, []string{
			"migrations/001_init_extensions.sql",
			"migrations/002_stores.sql",
		})
	case "down":
		runMigrations(ctx, pool, []string{
			"migrations/down/002_stores.sql",
		})
	case "seed":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate seed <stores.json>")
		}
		seed(ctx, pool, os.Args[2])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, files []string) {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		_, err = pool.Exec(ctx, string(data))
		if err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Println("all migrations applied")
}

func seed(ctx context.Context, pool *pgxpool.Pool, path string) {
	stores, err := memory.LoadStores(path)
	if err != nil {
		log.Fatalf("load %s: %v", path, err)
	}

	repo := postgres.NewStoreRepo(&postgres.DB{Pool: pool})
	if err := repo.UpsertBatch(ctx, stores); err != nil {
		log.Fatalf("seed: %v", err)
	}

	log.Printf("seeded %d stores from %s", len(stores), path)
}
