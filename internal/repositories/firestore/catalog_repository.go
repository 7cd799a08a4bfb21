package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	pfirestore "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/firestore"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

const productsCollection = "products"

// CatalogRepository reads product documents from Firestore.
type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// FindProduct fetches a single product snapshot.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	if r == nil || r.products == nil {
		return domain.ProductSnapshot{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductSnapshot{}, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "catalog find: product id is required", nil)
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		var ferr *pfirestore.Error
		if errors.As(err, &ferr) && ferr.IsNotFound() {
			return domain.ProductSnapshot{}, repositories.NewCatalogError(repositories.CatalogErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
		}
		return domain.ProductSnapshot{}, wrapCatalogError("catalog.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListProducts returns all products ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, wrapCatalogError("catalog.list", err)
	}

	products := make([]domain.ProductSnapshot, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

// productDocument mirrors the product schema the storefront writes.
type productDocument struct {
	Name      string    `firestore:"name"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.ProductSnapshot {
	return domain.ProductSnapshot{
		ID:    id,
		Name:  strings.TrimSpace(d.Name),
		Price: d.Price,
		Stock: d.Stock,
	}
}

func wrapCatalogError(op string, err error) error {
	if err == nil {
		return nil
	}
	var catErr *repositories.CatalogError
	if errors.As(err, &catErr) {
		if catErr.Op == "" {
			catErr.Op = op
		}
		return catErr
	}
	return pfirestore.WrapError(op, err)
}
