package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

type fakeCatalogRepository struct {
	products map[string]domain.ProductSnapshot
}

func (f *fakeCatalogRepository) FindProduct(_ context.Context, productID string) (domain.ProductSnapshot, error) {
	product, ok := f.products[productID]
	if !ok {
		return domain.ProductSnapshot{}, repositories.NewCatalogError(repositories.CatalogErrorProductNotFound, "product "+productID+" not found", nil)
	}
	return product, nil
}

func (f *fakeCatalogRepository) ListProducts(_ context.Context) ([]domain.ProductSnapshot, error) {
	result := make([]domain.ProductSnapshot, 0, len(f.products))
	for _, product := range f.products {
		result = append(result, product)
	}
	return result, nil
}

func TestCatalogServiceGetProduct(t *testing.T) {
	repo := &fakeCatalogRepository{products: map[string]domain.ProductSnapshot{
		"planner-a5": {ID: "planner-a5", Name: "Planner A5", Price: 95000, Stock: 12},
	}}
	service, err := NewCatalogService(CatalogServiceDeps{Catalog: repo})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	product, err := service.GetProduct(context.Background(), "planner-a5")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Price != 95000 {
		t.Fatalf("Price = %d, want 95000", product.Price)
	}

	if _, err := service.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrCatalogProductNotFound) {
		t.Fatalf("err = %v, want ErrCatalogProductNotFound", err)
	}
	if _, err := service.GetProduct(context.Background(), " "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("err = %v, want ErrCatalogInvalidInput", err)
	}
}
