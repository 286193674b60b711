package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/storedetect/internal/adapters/postgres"
	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/pkg/config"
	"github.com/samirrijal/storedetect/internal/pkg/logging"
	"github.com/samirrijal/storedetect/internal/storeimport"
)

// Manifest lists the store lists to import.
type Manifest struct {
	Source string      `json:"source"`
	Lists  []ListEntry `json:"lists"`
}

// ListEntry is one CSV store list. URL may be an http(s) URL or a local path.
type ListEntry struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	URL   string `json:"url"`
	Chain string `json:"chain,omitempty"`
}

const batchSize = 500

func main() {
	cfg, err := config.Load("storedetect-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", cfg.Telemetry.ServiceName))

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	slog.Info("store list import", "lists", len(manifest.Lists), "source", manifest.Source)

	// Optional second argument: comma separated slugs to import.
	slugFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			slugFilter[strings.TrimSpace(s)] = true
		}
	}

	client := &http.Client{Timeout: 120 * time.Second}
	repo := postgres.NewStoreRepo(db)

	var g errgroup.Group
	g.SetLimit(4)
	for _, list := range manifest.Lists {
		if len(slugFilter) > 0 && !slugFilter[list.Slug] {
			continue
		}
		g.Go(func() error {
			if err := ingestList(ctx, repo, client, list); err != nil {
				slog.Error("import failed", "list", list.Slug, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("import complete")
}

func ingestList(ctx context.Context, repo *postgres.StoreRepo, client *http.Client, list ListEntry) error {
	slog.Info("fetching store list", "list", list.Slug, "url", list.URL)

	body, err := open(ctx, client, list.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	res, err := storeimport.ParseCSV(body, list.Slug+"-", list.Chain)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for _, r := range res.Rejected {
		slog.Warn("row skipped", "list", list.Slug, "line", r.Line, "reason", r.Reason)
	}

	for start := 0; start < len(res.Stores); start += batchSize {
		end := min(start+batchSize, len(res.Stores))
		if err := repo.UpsertBatch(ctx, res.Stores[start:end]); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	}

	slog.Info("store list imported", "list", list.Slug, "stores", len(res.Stores), "skipped", len(res.Rejected))
	return nil
}

func open(ctx context.Context, client *http.Client, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.Open(src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, src)
	}
	return resp.Body, nil
}
