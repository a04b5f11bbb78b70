// Package catalog loads product definitions from YAML seed files.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tokoapp/toko/internal/models"
)

// SeedFile is the on-disk shape of a catalog seed.
type SeedFile struct {
	Products []SeedProduct `yaml:"products"`
}

// SeedProduct is one catalog entry. Prices are whole rupiah.
type SeedProduct struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Brand       string `yaml:"brand"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Stock       int    `yaml:"stock"`
	ImageURL    string `yaml:"image_url"`
	Category    string `yaml:"category"`
	Inactive    bool   `yaml:"inactive"`
}

// Load reads and validates a seed file, returning catalog products ready for
// upsert.
func Load(path string) ([]models.Product, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(payload)
}

// Parse decodes and validates seed file contents.
func Parse(payload []byte) ([]models.Product, error) {
	var file SeedFile
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("seed file contains no products")
	}

	seen := make(map[string]bool, len(file.Products))
	products := make([]models.Product, 0, len(file.Products))
	for i, entry := range file.Products {
		if entry.Name == "" {
			return nil, fmt.Errorf("product %d: name is required", i)
		}
		if entry.Slug == "" {
			return nil, fmt.Errorf("product %q: slug is required", entry.Name)
		}
		if seen[entry.Slug] {
			return nil, fmt.Errorf("product %q: duplicate slug %q", entry.Name, entry.Slug)
		}
		seen[entry.Slug] = true
		if entry.Price <= 0 {
			return nil, fmt.Errorf("product %q: price must be positive", entry.Name)
		}
		if entry.Stock < 0 {
			return nil, fmt.Errorf("product %q: stock must not be negative", entry.Name)
		}

		products = append(products, models.Product{
			Name:        entry.Name,
			Slug:        entry.Slug,
			Brand:       entry.Brand,
			Description: entry.Description,
			Price:       entry.Price,
			Stock:       entry.Stock,
			ImageURL:    entry.ImageURL,
			Category:    entry.Category,
			IsActive:    !entry.Inactive,
		})
	}

	return products, nil
}
