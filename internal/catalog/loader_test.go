package catalog

import (
	"strings"
	"testing"
)

const validSeed = `
products:
  - name: Kopi Arabika Gayo 250g
    slug: kopi-arabika-gayo-250g
    brand: Toko Kopi
    price: 85000
    stock: 40
    category: coffee
  - name: V60 Dripper
    slug: v60-dripper
    price: 120000
    stock: 15
    image_url: https://cdn.example.com/v60.jpg
    inactive: true
`

func TestParse(t *testing.T) {
	t.Parallel()

	products, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	first := products[0]
	if first.Slug != "kopi-arabika-gayo-250g" || first.Price != 85000 || !first.IsActive {
		t.Fatalf("unexpected product: %+v", first)
	}
	if products[1].IsActive {
		t.Fatal("inactive entry should not be active")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"not yaml", "products: [", "failed to parse"},
		{"empty", "products: []", "no products"},
		{"missing name", "products:\n  - slug: x\n    price: 1\n    stock: 1", "name is required"},
		{"missing slug", "products:\n  - name: X\n    price: 1\n    stock: 1", "slug is required"},
		{"duplicate slug", "products:\n  - {name: A, slug: a, price: 1, stock: 1}\n  - {name: B, slug: a, price: 1, stock: 1}", "duplicate slug"},
		{"zero price", "products:\n  - {name: A, slug: a, price: 0, stock: 1}", "price must be positive"},
		{"negative stock", "products:\n  - {name: A, slug: a, price: 1, stock: -1}", "stock must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
