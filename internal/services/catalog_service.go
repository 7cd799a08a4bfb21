package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	catalog repositories.CatalogRepository
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{catalog: deps.Catalog}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductSnapshot{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return domain.ProductSnapshot{}, translateCatalogError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return products, nil
}

func translateCatalogError(err error) error {
	var catalogErr *repositories.CatalogError
	if errors.As(err, &catalogErr) && catalogErr.Code == repositories.CatalogErrorProductNotFound {
		return fmt.Errorf("%w: %s", ErrCatalogProductNotFound, catalogErr.Message)
	}
	return err
}
