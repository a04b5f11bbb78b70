package main

// Seed loads a YAML catalog file into the products table. It is a one-shot
// operational tool; the storefront never writes to the catalog itself.

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/tokoapp/toko/internal/catalog"
	"github.com/tokoapp/toko/internal/db"
)

func main() {
	seedPath := flag.String("file", "catalog.yaml", "path to the catalog seed file")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	products, err := catalog.Load(*seedPath)
	if err != nil {
		logger.Error("failed to load catalog", "file", *seedPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	store := db.NewProductStore(database)
	for i := range products {
		product := &products[i]
		if err := store.Upsert(ctx, product); err != nil {
			logger.Error("failed to upsert product", "slug", product.Slug, "error", err)
			os.Exit(1)
		}
		logger.Info("seeded product", "slug", product.Slug, "price", product.Price, "stock", product.Stock)
	}

	logger.Info("catalog seeded", "file", *seedPath, "products", len(products))
}
